package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"macagent/pkg/metrics"
)

// ContextPointKey holds the dispatched request point, set by the handler.
const ContextPointKey = "point"

// MetricsMiddleware records latency and status per route. Point requests are
// labelled by point, everything else by its registered path.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		metrics.HTTPInFlight.Inc()
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		metrics.HTTPInFlight.Dec()

		route := routeLabel(c)
		metrics.HTTPResponses.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPLatency.WithLabelValues(route).Observe(elapsed.Seconds())
	}
}

// routeLabel keeps label cardinality bounded: catch-all paths never become labels.
func routeLabel(c *gin.Context) string {
	if point := c.GetString(ContextPointKey); point != "" {
		return point
	}
	if path := c.FullPath(); path != "" && path != "/*path" {
		return path
	}
	return "unmatched"
}
