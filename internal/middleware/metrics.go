package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/service"
)

// Metrics observes latency and status per route template. Requests matching no
// route share the "unmatched" label. Paths in skip (probes, the scrape
// endpoint) are not observed.
func Metrics(metrics *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
