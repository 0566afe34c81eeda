package util

import (
	"regexp"
	"strings"
)

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)

// SanitizeForLog removes control characters and newlines from user content before logging.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return controlChars.ReplaceAllString(s, " ")
}

// Truncate caps s at max bytes without splitting a multi-byte rune.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// StripQuery drops everything from the first '?' or '#'.
func StripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i != -1 {
		return p[:i]
	}
	return p
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
