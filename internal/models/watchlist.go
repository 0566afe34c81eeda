package models

import "time"

// UAClass buckets user agents for the watchlist population.
type UAClass string

const (
	UAClassLinux   UAClass = "linux"
	UAClassUnknown UAClass = "unknown_ua"
	UAClassOther   UAClass = "other"
)

// WatchlistActor is one row of the computed watchlist. It is never persisted.
type WatchlistActor struct {
	ActorKey         string    `json:"actor_key"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	IP               string    `json:"ip,omitempty"`
	CountryCode      string    `json:"country_code,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	UserType         string    `json:"user_type,omitempty"`
	Role             string    `json:"role,omitempty"`
	UAClass          UAClass   `json:"ua_class"`
	TotalEvents      int       `json:"total_events"`
	SuspiciousEvents int       `json:"suspicious_events"`
	TrapHits         int       `json:"trap_hits"`
	AdminForbidden   int       `json:"admin_forbidden"`
	SuspiciousPath   int       `json:"suspicious_path"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	IsTrusted        bool      `json:"is_trusted"`
	TrustedLabel     string    `json:"trusted_label,omitempty"`
	IsBlocked        bool      `json:"is_blocked"`
	Emergency        bool      `json:"emergency"`
	Intel            *IPIntel  `json:"intel,omitempty"`
}

// ComputeEmergency sets Emergency from the trust flag and the strong-signal counters.
func (w *WatchlistActor) ComputeEmergency() {
	w.Emergency = !w.IsTrusted && (w.TrapHits > 0 || w.AdminForbidden > 0)
}
