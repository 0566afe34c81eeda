package models

import (
	"time"

	"gorm.io/datatypes"
)

// EventType classifies a security event.
type EventType string

const (
	EventAuthFailed        EventType = "auth_failed"
	EventAuthLoginFailed   EventType = "auth_login_failed"
	EventTrapHit           EventType = "trap_hit"
	EventAdminForbidden    EventType = "admin_forbidden"
	EventAdminUnauthorized EventType = "admin_unauthorized"
	EventSuspiciousPath    EventType = "suspicious_path"
	EventRateLimited       EventType = "rate_limited"
	EventIPBlock           EventType = "ip_block"
	EventGeoBlock          EventType = "geo_block"
)

// KnownEventTypes lists every event type producers emit.
var KnownEventTypes = []EventType{
	EventAuthFailed,
	EventAuthLoginFailed,
	EventTrapHit,
	EventAdminForbidden,
	EventAdminUnauthorized,
	EventSuspiciousPath,
	EventRateLimited,
	EventIPBlock,
	EventGeoBlock,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, k := range KnownEventTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// HighRiskEventTypes are the event types the watchlist aggregates.
var HighRiskEventTypes = []EventType{
	EventTrapHit,
	EventAdminForbidden,
	EventAdminUnauthorized,
	EventSuspiciousPath,
	EventRateLimited,
	EventIPBlock,
}

// FailedLoginEventTypes count towards the failed-login threshold of the traffic view.
var FailedLoginEventTypes = []EventType{EventAuthFailed, EventAuthLoginFailed}

// DefaultSeverity is used when a producer does not set one explicitly.
func (t EventType) DefaultSeverity() Severity {
	switch t {
	case EventTrapHit:
		return SeverityCritical
	case EventRateLimited, EventGeoBlock:
		return SeverityInfo
	default:
		return SeverityWarn
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityInfo || s == SeverityWarn || s == SeverityCritical
}

// SecurityEvent is an append-only record of a security-relevant request. Rows are never
// updated after insert.
type SecurityEvent struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index"`
	EventType   EventType         `json:"event_type" gorm:"size:48;index"`
	Severity    Severity          `json:"severity" gorm:"size:16"`
	RequestID   string            `json:"request_id" gorm:"size:64"`
	Method      string            `json:"method" gorm:"size:16"`
	Path        string            `json:"path" gorm:"size:512"`
	StatusCode  int               `json:"status_code"`
	IP          *string           `json:"ip" gorm:"size:64;index"`
	UserAgent   *string           `json:"user_agent" gorm:"size:512"`
	Fingerprint *string           `json:"fingerprint" gorm:"size:64;index"`
	CountryCode string            `json:"country_code" gorm:"size:8"`
	Region      string            `json:"region"`
	City        string            `json:"city"`
	UserID      *string           `json:"user_id" gorm:"size:64"`
	UserType    string            `json:"user_type" gorm:"size:32"`
	Role        string            `json:"role" gorm:"size:32"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:json"`
}

// TableName pins the table name used by the kernel queries.
func (SecurityEvent) TableName() string { return "security_events" }

// ActorKey groups an event under its fingerprint, falling back to IP, then "unknown".
func (e SecurityEvent) ActorKey() string {
	return ActorKey(e.Fingerprint, e.IP)
}

// ActorKey is COALESCE(fingerprint, ip, 'unknown') with empty strings treated as missing.
func ActorKey(fingerprint, ip *string) string {
	if fingerprint != nil && *fingerprint != "" {
		return *fingerprint
	}
	if ip != nil && *ip != "" {
		return *ip
	}
	return "unknown"
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the empty string for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
