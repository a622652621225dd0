package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"activity-categorizer/internal/metrics"
)

// RequestMetrics records the latency and status of every routed request.
// Unrouted paths are grouped so probes do not explode label cardinality.
func RequestMetrics(m *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
