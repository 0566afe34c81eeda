package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
)

const kernelTokenMaxAge = 12 * 60 * 60

// KernelAuthHandler serves operator login and session introspection.
type KernelAuthHandler struct {
	operators    *services.OperatorService
	events       middleware.EventLogger
	secureCookie bool
}

func NewKernelAuthHandler(operators *services.OperatorService, events middleware.EventLogger, secureCookie bool) *KernelAuthHandler {
	return &KernelAuthHandler{operators: operators, events: events, secureCookie: secureCookie}
}

type KernelLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges operator credentials for a token. Failures are recorded as
// auth_login_failed events.
func (h *KernelAuthHandler) Login(c *gin.Context) {
	var req KernelLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, op, err := h.operators.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		reason := "invalid_credentials"
		switch {
		case errors.Is(err, services.ErrAccountLocked):
			reason = "locked"
		case !errors.Is(err, services.ErrInvalidCredentials):
			respondError(c, err)
			return
		}
		h.events.LogEvent(middleware.SecurityEventInput(c, models.EventAuthLoginFailed, http.StatusUnauthorized,
			models.LoginFailureMetadata{Username: req.Username, Reason: reason}))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	h.setTokenCookie(c, token, kernelTokenMaxAge)
	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": op.Username,
		"role":     op.Role,
	})
}

func (h *KernelAuthHandler) Logout(c *gin.Context) {
	h.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated operator.
func (h *KernelAuthHandler) Me(c *gin.Context) {
	id, err := strconv.ParseUint(c.GetString(middleware.ContextKeyUserID), 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	op, err := h.operators.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         op.ID,
		"username":   op.Username,
		"role":       op.Role,
		"user_type":  models.UserTypeOperator,
		"last_login": op.LastLogin,
	})
}

func (h *KernelAuthHandler) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.KernelTokenCookie, value, maxAge, "/", "", h.secureCookie, true)
}
