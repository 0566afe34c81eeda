package services

import (
	"strings"

	"github.com/bazaarly/kernel/backend/internal/models"
)

// ClassifyUserAgent is the watchlist population policy. Desktop Linux user agents and
// empty ones are the headless/script-like clients the watchlist cares about; Android
// reports "Linux" too and is deliberately excluded.
func ClassifyUserAgent(ua string) models.UAClass {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return models.UAClassUnknown
	}
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "linux") && !strings.Contains(lower, "android") {
		return models.UAClassLinux
	}
	return models.UAClassOther
}
