package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/services"
	"github.com/bazaarly/kernel/backend/internal/version"
)

// HealthHandler responds with basic service metadata for uptime checks. A partially
// provisioned schema is reported, not treated as unhealthy.
func HealthHandler(schema *services.SchemaState) gin.HandlerFunc {
	return func(c *gin.Context) {
		missing := schema.MissingTables()
		c.JSON(http.StatusOK, gin.H{
			"status":           "ok",
			"service":          version.Name,
			"version":          version.Version,
			"git_commit":       version.GitCommit,
			"build_time":       version.BuildTime,
			"migration_needed": len(missing) > 0,
			"missing_tables":   missing,
		})
	}
}
