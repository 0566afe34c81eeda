// Package fingerprint derives the pseudo-identity used to correlate anonymous actors and
// resolves the client IP every other component keys on.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	missingField = "-"
	fieldSep     = "|"
)

// Compute hashes (ip, userAgent, cookieSeed) into a stable hex SHA-256 identity.
// ok is false when all three are missing, so "no signal" never collapses into one
// shared hash.
//
// An empty string is the same as a missing field: (ip, "") and (ip, <no user agent>)
// hash identically. net/http reports an absent User-Agent header and an empty one both
// as "", so callers could not tell them apart anyway.
//
// Present fields are length-prefixed, so a field that contains the separator or equals
// the missing marker cannot be confused with a different split of the inputs.
func Compute(ip, userAgent, cookieSeed string) (fp string, ok bool) {
	if ip == "" && userAgent == "" && cookieSeed == "" {
		return "", false
	}
	var b strings.Builder
	for i, field := range [...]string{ip, userAgent, cookieSeed} {
		if i > 0 {
			b.WriteString(fieldSep)
		}
		if field == "" {
			b.WriteString(missingField)
			continue
		}
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), true
}

// Ptr is Compute returning nil for "no signal", the shape stored on events.
func Ptr(ip, userAgent, cookieSeed string) *string {
	fp, ok := Compute(ip, userAgent, cookieSeed)
	if !ok {
		return nil
	}
	return &fp
}
