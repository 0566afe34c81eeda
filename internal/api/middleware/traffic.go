package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazaarly/kernel/backend/internal/metrics"
	"github.com/bazaarly/kernel/backend/internal/traffic"
	"github.com/bazaarly/kernel/backend/internal/util"
)

// TrafficCapture appends one record per matching request to buf after the handler ran.
// Capture problems are logged and swallowed; they never change the response.
func TrafficCapture(buf traffic.Buffer, filter traffic.PathFilter) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if !filter.Match(c.Request.URL.Path) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				GetRequestLogger(c).Warnf("traffic capture failed: %v", r)
			}
		}()

		id := GetIdentity(c)
		buf.Record(traffic.Record{
			Timestamp:   start,
			Method:      c.Request.Method,
			Path:        util.Truncate(c.Request.URL.Path, 512),
			StatusCode:  c.Writer.Status(),
			IP:          id.IP,
			UserAgent:   util.Truncate(id.UserAgent, 512),
			Fingerprint: id.Fingerprint,
			UserID:      c.GetString(ContextKeyUserID),
			UserType:    c.GetString(ContextKeyUserType),
			Role:        c.GetString(ContextKeyRole),
			DurationMs:  float64(time.Since(start).Microseconds()) / 1000,
		})
		metrics.ObserveTrafficRecord(buf.Len())
	}
}
