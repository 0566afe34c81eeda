package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
)

// KernelSecurityHandler serves the security dashboard: event summaries, raw events, the
// watchlist, and the trust and block registries.
type KernelSecurityHandler struct {
	events      *services.SecurityEventService
	watchlist   *services.WatchlistService
	trust       *services.TrustService
	blocks      *services.BlockService
	defaultDays int
}

func NewKernelSecurityHandler(events *services.SecurityEventService, watchlist *services.WatchlistService, trust *services.TrustService, blocks *services.BlockService, defaultDays int) *KernelSecurityHandler {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &KernelSecurityHandler{
		events:      events,
		watchlist:   watchlist,
		trust:       trust,
		blocks:      blocks,
		defaultDays: defaultDays,
	}
}

// Summary handles GET /security/summary.
func (h *KernelSecurityHandler) Summary(c *gin.Context) {
	sum, err := h.events.Summary(c.Request.Context(), intQuery(c, "days", h.defaultDays, 1, 90))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Events handles GET /security/events.
func (h *KernelSecurityHandler) Events(c *gin.Context) {
	q := services.EventQuery{
		Days:      intQuery(c, "days", h.defaultDays, 1, 90),
		Limit:     intQuery(c, "limit", 200, 1, 1000),
		Type:      models.EventType(c.Query("type")),
		Localhost: c.DefaultQuery("localhost", services.LocalhostInclude),
	}
	if q.Type != "" && !q.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}
	switch q.Localhost {
	case services.LocalhostInclude, services.LocalhostExclude, services.LocalhostOnly:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "localhost must be include, exclude or only"})
		return
	}

	events, migration, err := h.events.ListEvents(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":           events,
		"count":            len(events),
		"migration_needed": migration,
	})
}

// Watchlist handles GET /security/linux/watchlist. The caller's own fingerprint and IP
// are excluded from the result.
func (h *KernelSecurityHandler) Watchlist(c *gin.Context) {
	id := middleware.GetIdentity(c)
	res, err := h.watchlist.List(c.Request.Context(), services.WatchlistQuery{
		Days:               intQuery(c, "days", h.defaultDays, 1, 90),
		Limit:              intQuery(c, "limit", 100, 1, 500),
		ExcludeFingerprint: id.Fingerprint,
		ExcludeIP:          id.IP,
		WithIntel:          c.DefaultQuery("intel", "true") != "false",
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListTrusted handles GET /security/trusted.
func (h *KernelSecurityHandler) ListTrusted(c *gin.Context) {
	actors, migration, err := h.trust.List(c.Request.Context(), boolQuery(c, "include_inactive"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trusted": actors, "migration_needed": migration})
}

type TrustRequest struct {
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
	Label       string `json:"label" binding:"max=200"`
}

// AddTrusted handles POST /security/trusted.
func (h *KernelSecurityHandler) AddTrusted(c *gin.Context) {
	var req TrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.addTrusted(c, req)
}

type TrustSelfRequest struct {
	Label string `json:"label" binding:"max=200"`
}

// TrustSelf handles POST /security/trusted/self, trusting the caller's own fingerprint
// and IP.
func (h *KernelSecurityHandler) TrustSelf(c *gin.Context) {
	var req TrustSelfRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Label == "" {
		req.Label = "operator " + c.GetString(middleware.ContextKeyUsername)
	}
	id := middleware.GetIdentity(c)
	h.addTrusted(c, TrustRequest{Fingerprint: id.Fingerprint, IP: id.IP, Label: req.Label})
}

func (h *KernelSecurityHandler) addTrusted(c *gin.Context, req TrustRequest) {
	rows, err := h.trust.Add(c.Request.Context(), req.Fingerprint, req.IP, req.Label)
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.GetRequestLogger(c).WithField("operator", c.GetString(middleware.ContextKeyUsername)).
		WithField("rows", len(rows)).Info("trusted actor added")
	c.JSON(http.StatusCreated, gin.H{"trusted": rows})
}

// DeleteTrusted handles DELETE /security/trusted/:id. Rows are deactivated, not removed.
func (h *KernelSecurityHandler) DeleteTrusted(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.trust.Deactivate(c.Request.Context(), uint(id)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "trusted actor deactivated"})
}

// ListBlocks handles GET /blocks.
func (h *KernelSecurityHandler) ListBlocks(c *gin.Context) {
	blocks, migration, err := h.blocks.List(c.Request.Context(), boolQuery(c, "include_inactive"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "migration_needed": migration})
}

type BlockIPRequest struct {
	IP     string `json:"ip" binding:"required"`
	Reason string `json:"reason" binding:"max=500"`
}

// AddBlock handles POST /blocks. The caller cannot block their own IP, and trusted IPs
// cannot be blocked.
func (h *KernelSecurityHandler) AddBlock(c *gin.Context) {
	var req BlockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := middleware.GetIdentity(c)
	block, err := h.blocks.Add(c.Request.Context(), services.BlockRequest{
		IP:          req.IP,
		Reason:      req.Reason,
		Operator:    c.GetString(middleware.ContextKeyUsername),
		RequesterIP: id.IP,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	middleware.GetRequestLogger(c).WithField("blocked_ip", block.IP).Info("ip blocked")
	c.JSON(http.StatusCreated, block)
}

// DeleteBlock handles DELETE /blocks/:ip.
func (h *KernelSecurityHandler) DeleteBlock(c *gin.Context) {
	if err := h.blocks.Deactivate(c.Request.Context(), c.Param("ip")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ip unblocked"})
}
