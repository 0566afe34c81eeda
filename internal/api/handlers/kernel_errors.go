package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/api/middleware"
	"github.com/bazaarly/kernel/backend/internal/services"
)

// respondError maps service errors onto status codes. Unknown errors are logged and
// reported as a generic 500 so storage details never reach the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidIP),
		errors.Is(err, services.ErrTrustIdentifierRequired),
		errors.Is(err, services.ErrSelfBlock),
		errors.Is(err, services.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBlockTrusted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrBlockNotFound),
		errors.Is(err, services.ErrTrustedActorNotFound),
		errors.Is(err, services.ErrOperatorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMigrationNeeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "migration_needed": true})
	default:
		middleware.GetRequestLogger(c).WithError(err).Error("kernel request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// intQuery reads an integer query parameter, falling back to def when it is absent or
// malformed and clamping it to [min, max].
func intQuery(c *gin.Context, name string, def, min, max int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		v = def
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v
}

func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
