package cerberus

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const rejectionReportInterval = time.Minute

type limiterEntry struct {
	lim          *rate.Limiter
	lastSeen     time.Time
	lastReported time.Time
}

// limiterSet keeps one token bucket per client IP.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
	now     func() time.Time
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	if burst <= 0 {
		burst = int(rps) + 1
	}
	return &limiterSet{
		limit:   rate.Limit(rps),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// allow consumes a token for key. report is true for the first rejection of key in each
// reporting interval, so a flood produces one event per minute rather than one per request.
func (l *limiterSet) allow(key string) (allowed, report bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	if e.lim.AllowN(now, 1) {
		return true, false
	}
	if now.Sub(e.lastReported) >= rejectionReportInterval {
		e.lastReported = now
		return false, true
	}
	return false, false
}

// sweep drops buckets idle for longer than maxIdle and returns how many were removed.
func (l *limiterSet) sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

func (l *limiterSet) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
