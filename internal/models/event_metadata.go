package models

// EventMetadata is the typed detail attached to a security event. Each producer uses the
// variant matching its event type; Fields flattens it for storage.
type EventMetadata interface {
	Fields() map[string]interface{}
}

// TrapMetadata describes which trap was triggered.
type TrapMetadata struct {
	Trap string
}

func (m TrapMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"trap": m.Trap}
}

// SuspiciousPathMetadata records the scanner pattern the path matched.
type SuspiciousPathMetadata struct {
	Pattern string
}

func (m SuspiciousPathMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"pattern": m.Pattern}
}

// RateLimitMetadata records the bucket that was exhausted.
type RateLimitMetadata struct {
	RPS   float64
	Burst int
}

func (m RateLimitMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"rps": m.RPS, "burst": m.Burst}
}

// LoginFailureMetadata records a failed credential check. The password is never stored.
type LoginFailureMetadata struct {
	Username string
	Reason   string
}

func (m LoginFailureMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"username": m.Username, "reason": m.Reason}
}

// BlockMetadata links an ip_block event to the block row that caused it.
type BlockMetadata struct {
	Reason    string
	BlockedBy string
}

func (m BlockMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"reason": m.Reason, "blocked_by": m.BlockedBy}
}

// GeoBlockMetadata records the country that matched the deny list.
type GeoBlockMetadata struct {
	Country string
}

func (m GeoBlockMetadata) Fields() map[string]interface{} {
	return map[string]interface{}{"country": m.Country}
}

// AccessDeniedMetadata explains an admin_unauthorized / admin_forbidden rejection.
type AccessDeniedMetadata struct {
	Reason       string
	RequiredRole string
}

func (m AccessDeniedMetadata) Fields() map[string]interface{} {
	f := map[string]interface{}{"reason": m.Reason}
	if m.RequiredRole != "" {
		f["required_role"] = m.RequiredRole
	}
	return f
}

// MergeMetadata flattens typed metadata and free-form diagnostic context. Typed keys win.
func MergeMetadata(typed EventMetadata, extra map[string]interface{}) map[string]interface{} {
	if typed == nil && len(extra) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	if typed != nil {
		for k, v := range typed.Fields() {
			out[k] = v
		}
	}
	return out
}
