// Package traffic keeps a bounded, newest-first view of recent requests in memory.
// Nothing here is persisted; a restart starts from an empty buffer.
package traffic

import (
	"sync"
	"time"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// Record is the lightweight per-request entry kept in the buffer.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	StatusCode  int       `json:"status_code"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent"`
	Fingerprint string    `json:"fingerprint"`
	UserID      string    `json:"user_id,omitempty"`
	UserType    string    `json:"user_type,omitempty"`
	Role        string    `json:"role,omitempty"`
	DurationMs  float64   `json:"duration_ms"`
}

// ActorKey mirrors the durable events' grouping key: fingerprint, then IP, then "unknown".
func (r Record) ActorKey() string {
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	if r.IP != "" {
		return r.IP
	}
	return "unknown"
}

// Buffer is the contract handlers and middleware depend on, so tests can inject a fresh
// instance. A nil keep predicate selects every record.
type Buffer interface {
	Record(rec Record)
	Recent(limit int, keep func(Record) bool) []Record
	Summary(window time.Duration, keep func(Record) bool) Summary
	Len() int
	Capacity() int
}

// Ring is a fixed-capacity circular Buffer guarded by a mutex. Writes are O(1); once
// full, each write silently overwrites the oldest entry.
type Ring struct {
	mu   sync.Mutex
	buf  []Record
	next int
	size int
	topN int
	now  func() time.Time
}

// NewRing creates a ring with the given capacity and summary breadth.
func NewRing(capacity, topN int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Ring{buf: make([]Record, capacity), topN: topN, now: time.Now}
}

// Record appends rec as the newest entry.
func (r *Ring) Record(rec Record) {
	r.mu.Lock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
	r.mu.Unlock()
}

// Recent returns up to limit entries accepted by keep, newest first. A non-positive limit
// returns every accepted entry.
func (r *Ring) Recent(limit int, keep func(Record) bool) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, min(r.size, max(limit, 0)))
	idx := r.next
	for i := 0; i < r.size; i++ {
		if limit > 0 && len(out) == limit {
			break
		}
		idx--
		if idx < 0 {
			idx = len(r.buf) - 1
		}
		if keep == nil || keep(r.buf[idx]) {
			out = append(out, r.buf[idx])
		}
	}
	return out
}

// Summary aggregates the entries accepted by keep that are newer than window, measured
// against the ring's clock.
func (r *Ring) Summary(window time.Duration, keep func(Record) bool) Summary {
	return Summarize(r.Recent(0, keep), window, r.now(), r.topN)
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of stored entries.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
