package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/services"
)

// SystemHandler reports how the kernel sees the caller.
type SystemHandler struct {
	trust  *services.TrustService
	blocks *services.BlockService
}

func NewSystemHandler(trust *services.TrustService, blocks *services.BlockService) *SystemHandler {
	return &SystemHandler{trust: trust, blocks: blocks}
}

type WhoamiResponse struct {
	IP          string `json:"ip"`
	Source      string `json:"source"`
	UserAgent   string `json:"user_agent"`
	Fingerprint string `json:"fingerprint"`
	IsTrusted   bool   `json:"is_trusted"`
	IsBlocked   bool   `json:"is_blocked"`
}

// Whoami returns the caller's resolved IP and fingerprint, i.e. the identity the
// watchlist and traffic views exclude for this operator.
func (h *SystemHandler) Whoami(c *gin.Context) {
	id := middleware.GetIdentity(c)
	resp := WhoamiResponse{
		IP:          id.IP,
		Source:      id.IPSource,
		UserAgent:   id.UserAgent,
		Fingerprint: id.Fingerprint,
	}
	ctx := c.Request.Context()
	if trusted, err := h.trust.IsTrusted(ctx, id.Fingerprint, id.IP); err == nil {
		resp.IsTrusted = trusted
	}
	if _, blocked, err := h.blocks.IsBlocked(ctx, id.IP); err == nil {
		resp.IsBlocked = blocked
	}
	c.JSON(http.StatusOK, resp)
}
