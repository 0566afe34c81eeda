package traffic

import "strings"

// PathFilter decides whether a request path is worth a slot in the buffer. Static assets
// and health checks fall outside the configured prefixes and are skipped.
type PathFilter struct {
	prefixes []string
	excluded []string
}

// NewPathFilter builds a filter from prefixes; blank entries are ignored. An empty filter
// matches every path.
func NewPathFilter(prefixes []string) PathFilter {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	return PathFilter{prefixes: clean}
}

// Excluding returns a copy of f that rejects paths under any of prefixes, even when they
// also fall under an included prefix.
func (f PathFilter) Excluding(prefixes ...string) PathFilter {
	out := PathFilter{prefixes: f.prefixes}
	out.excluded = append(append([]string(nil), f.excluded...), prefixes...)
	return out
}

// Match reports whether path starts with one of the prefixes and none of the exclusions.
func (f PathFilter) Match(path string) bool {
	for _, p := range f.excluded {
		if strings.HasPrefix(path, p) {
			return false
		}
	}
	if len(f.prefixes) == 0 {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
