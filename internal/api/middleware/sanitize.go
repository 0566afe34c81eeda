package middleware

import (
	"net/http"
	"strings"

	"github.com/bazaarly/kernel/backend/internal/util"
)

const maxLoggedValue = 200

var sensitiveHeaders = map[string]struct{}{
	"authorization":       {},
	"cookie":              {},
	"set-cookie":          {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"x-auth-token":        {},
	"x-forwarded-for":     {},
	"x-real-ip":           {},
}

// SanitizeHeaders returns a copy of h that is safe to log. Credentials and the raw
// client address headers are redacted; the resolved IP is logged separately.
func SanitizeHeaders(h http.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h))
	for k, vals := range h {
		if _, ok := sensitiveHeaders[strings.ToLower(k)]; ok {
			out[k] = []string{"<redacted>"}
			continue
		}
		clean := make([]string, 0, len(vals))
		for _, v := range vals {
			clean = append(clean, util.Truncate(util.SanitizeForLog(v), maxLoggedValue))
		}
		out[k] = clean
	}
	return out
}

// SanitizePath drops the query string, strips control characters and truncates.
func SanitizePath(p string) string {
	return util.Truncate(util.SanitizeForLog(util.StripQuery(p)), maxLoggedValue)
}
