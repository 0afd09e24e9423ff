package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projecthub/projecthub/internal/telemetry"
)

// noRoute labels requests that matched no route, keeping path cardinality bounded.
const noRoute = "<no-route>"

// MetricsMiddleware counts every request in http_requests_total{method, path,
// status} and observes its latency in http_request_duration_seconds{method, path}.
// path is the gin route template (/api/v1/projects/:id/messages), never the raw URL.
//
// A websocket upgrade returns only when the connection closes, so /ws is
// counted but kept out of the latency histogram.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		if c.IsWebsocket() {
			return
		}
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
