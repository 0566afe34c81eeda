package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
)

// Context keys set by KernelAuth. Storefront auth middleware uses the same keys for
// ordinary users so traffic capture can attribute requests.
const (
	ContextKeyUserID   = "userID"
	ContextKeyUsername = "username"
	ContextKeyUserType = "userType"
	ContextKeyRole     = "role"
)

// KernelTokenCookie carries the operator token for browser sessions.
const KernelTokenCookie = "kernel_token"

// TokenValidator verifies operator tokens.
type TokenValidator interface {
	ValidateToken(token string) (*services.OperatorClaims, error)
}

// EventLogger records security events without blocking the request.
type EventLogger interface {
	LogEvent(in services.EventInput)
}

// KernelAuth admits only requests carrying a valid operator token. No or invalid
// credentials get 401; a valid token for a non-operator identity gets 403.
func KernelAuth(tokens TokenValidator, events EventLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			denyKernel(c, events, http.StatusUnauthorized, models.EventAdminUnauthorized,
				models.AccessDeniedMetadata{Reason: "missing_token"}, "authorization required")
			return
		}
		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			denyKernel(c, events, http.StatusUnauthorized, models.EventAdminUnauthorized,
				models.AccessDeniedMetadata{Reason: "invalid_token"}, "invalid or expired token")
			return
		}

		c.Set(ContextKeyUserID, strconv.FormatUint(uint64(claims.OperatorID), 10))
		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeyUserType, claims.UserType)
		c.Set(ContextKeyRole, claims.Role)

		if claims.UserType != models.UserTypeOperator {
			denyKernel(c, events, http.StatusForbidden, models.EventAdminForbidden,
				models.AccessDeniedMetadata{Reason: "not_operator"}, "operator access required")
			return
		}
		c.Next()
	}
}

// RequireKernelRole admits operators holding one of roles. It must run after KernelAuth.
func RequireKernelRole(events EventLogger, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextKeyRole)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		denyKernel(c, events, http.StatusForbidden, models.EventAdminForbidden,
			models.AccessDeniedMetadata{Reason: "insufficient_role", RequiredRole: strings.Join(roles, ",")},
			"insufficient permissions")
	}
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if v, err := c.Cookie(KernelTokenCookie); err == nil {
		return v
	}
	return ""
}

func denyKernel(c *gin.Context, events EventLogger, status int, typ models.EventType, meta models.EventMetadata, msg string) {
	if events != nil {
		events.LogEvent(SecurityEventInput(c, typ, status, meta))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// SecurityEventInput describes the current request as a security event.
func SecurityEventInput(c *gin.Context, typ models.EventType, status int, meta models.EventMetadata) services.EventInput {
	id := GetIdentity(c)
	return services.EventInput{
		Type:        typ,
		RequestID:   GetRequestID(c),
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		StatusCode:  status,
		IP:          id.IP,
		UserAgent:   id.UserAgent,
		CookieSeed:  id.Seed,
		Fingerprint: id.Fingerprint,
		UserID:      c.GetString(ContextKeyUserID),
		UserType:    c.GetString(ContextKeyUserType),
		Role:        c.GetString(ContextKeyRole),
		Metadata:    meta,
	}
}
