package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tempora-hq/scheduler-api/internal/service"
)

// Metrics captures request metrics using the provided service. The
// scrape endpoint itself is excluded to keep the series bounded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if metricsSvc == nil || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
