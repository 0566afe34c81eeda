package fingerprint

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Header names consulted by ClientIP, in order.
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

// Source values reported by Resolve.
const (
	SourceForwardedFor = "x-forwarded-for"
	SourceRealIP       = "x-real-ip"
	SourceDirect       = "direct"
)

// ClientIP resolves the normalized client IP for r. It is the only IP resolution used by
// the ring buffer, the event recorder, the guard and the kernel API, so fingerprints and
// self-exclusion agree.
func ClientIP(r *http.Request) string {
	ip, _ := Resolve(r)
	return ip
}

// Resolve is ClientIP that also reports which source supplied the address.
func Resolve(r *http.Request) (ip, source string) {
	if r == nil {
		return "", SourceDirect
	}
	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if ip := NormalizeIP(first); ip != "" {
			return ip, SourceForwardedFor
		}
	}
	if xri := r.Header.Get(HeaderRealIP); xri != "" {
		if ip := NormalizeIP(xri); ip != "" {
			return ip, SourceRealIP
		}
	}
	return NormalizeIP(hostOnly(r.RemoteAddr)), SourceDirect
}

// NormalizeIP trims s, strips an IPv4-mapped IPv6 prefix and canonicalises the address.
// Values that do not parse are returned trimmed (lowercased) rather than dropped, so a
// garbage header still groups consistently.
func NormalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = strings.Trim(s, "[]")
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().WithZone("").String()
	}
	lower := strings.ToLower(s)
	return strings.TrimPrefix(lower, "::ffff:")
}

// ValidIP reports whether s parses as an IPv4 or IPv6 address once trimmed and
// unbracketed.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	return err == nil
}

// IsLoopback reports whether ip is 127.0.0.0/8 or ::1.
func IsLoopback(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	return err == nil && addr.Unmap().IsLoopback()
}

// LoopbackAddresses are the literal values used to filter local traffic in queries.
var LoopbackAddresses = []string{"127.0.0.1", "::1"}

func hostOnly(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
