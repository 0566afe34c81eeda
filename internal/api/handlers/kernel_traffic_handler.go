package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/services"
	"github.com/bazaarly/kernel/backend/internal/traffic"
)

// KernelTrafficHandler exposes the in-memory traffic buffer, restricted to suspicious
// actors. The raw buffer is never returned.
type KernelTrafficHandler struct {
	buffer      traffic.Buffer
	watchlist   *services.WatchlistService
	defaultDays int
}

func NewKernelTrafficHandler(buffer traffic.Buffer, watchlist *services.WatchlistService, defaultDays int) *KernelTrafficHandler {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &KernelTrafficHandler{buffer: buffer, watchlist: watchlist, defaultDays: defaultDays}
}

// suspiciousFilter selects buffer records belonging to suspicious actors, minus the
// caller's own requests.
func (h *KernelTrafficHandler) suspiciousFilter(c *gin.Context) (func(traffic.Record) bool, *services.SuspiciousSet, error) {
	id := middleware.GetIdentity(c)
	set, err := h.watchlist.SuspiciousActors(c.Request.Context(), services.SuspicionQuery{
		Days:               intQuery(c, "days", h.defaultDays, 1, 90),
		ExcludeFingerprint: id.Fingerprint,
		ExcludeIP:          id.IP,
	})
	if err != nil {
		return nil, nil, err
	}
	keep := func(r traffic.Record) bool {
		if id.Fingerprint != "" && r.Fingerprint == id.Fingerprint {
			return false
		}
		if id.IP != "" && r.IP == id.IP {
			return false
		}
		return set.Matches(r.Fingerprint, r.IP)
	}
	return keep, set, nil
}

// Summary handles GET /traffic/summary.
func (h *KernelTrafficHandler) Summary(c *gin.Context) {
	minutes := intQuery(c, "minutes", 60, 1, 24*60)
	keep, set, err := h.suspiciousFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary":           h.buffer.Summary(time.Duration(minutes)*time.Minute, keep),
		"suspicious_actors": set.Len(),
		"buffer_size":       h.buffer.Len(),
		"migration_needed":  set.MigrationNeeded,
	})
}

// Recent handles GET /traffic/recent.
func (h *KernelTrafficHandler) Recent(c *gin.Context) {
	limit := intQuery(c, "limit", 100, 1, h.buffer.Capacity())
	keep, set, err := h.suspiciousFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	records := h.buffer.Recent(limit, keep)
	c.JSON(http.StatusOK, gin.H{
		"records":          records,
		"count":            len(records),
		"migration_needed": set.MigrationNeeded,
	})
}
