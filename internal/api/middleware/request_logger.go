package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request with the request id, resolved client IP and
// fingerprint. Kernel reads are logged at debug to keep dashboards polling quietly.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		id := GetIdentity(c)
		entry := GetRequestLogger(c).WithFields(logrus.Fields{
			"status":      c.Writer.Status(),
			"method":      c.Request.Method,
			"path":        SanitizePath(c.Request.URL.Path),
			"latency":     time.Since(start).String(),
			"client":      id.IP,
			"fingerprint": id.Fingerprint,
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("handled request")
		case c.Request.Method == "GET" && c.GetString(ContextKeyUserType) != "":
			entry.Debug("handled request")
		default:
			entry.Info("handled request")
		}
	}
}
