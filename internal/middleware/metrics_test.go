package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/projecthub/projecthub/internal/telemetry"
)

// series returns the metric in c whose labels include all of labels, or nil.
func series(c prometheus.Collector, labels prometheus.Labels) *dto.Metric {
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		have := map[string]string{}
		for _, lp := range dm.GetLabel() {
			have[lp.GetName()] = lp.GetValue()
		}
		match := true
		for k, want := range labels {
			if have[k] != want {
				match = false
				break
			}
		}
		if match {
			return &dm
		}
	}
	return nil
}

func requestCount(method, path, status string) float64 {
	m := series(telemetry.HTTPRequestsTotal, prometheus.Labels{"method": method, "path": path, "status": status})
	return m.GetCounter().GetValue()
}

func latencySamples(method, path string) uint64 {
	m := series(telemetry.HTTPRequestDuration, prometheus.Labels{"method": method, "path": path})
	return m.GetHistogram().GetSampleCount()
}

// newMetricsRouter registers a few projecthub-shaped routes behind MetricsMiddleware.
func newMetricsRouter() *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	v1 := r.Group("/api/v1")
	v1.GET("/projects/:id/messages", func(c *gin.Context) { c.Status(http.StatusOK) })
	v1.POST("/requests/:id/accept", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	v1.GET("/projects/:id/unread", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })
	return r
}

func TestMetricsMiddleware_LabelsByRouteTemplate(t *testing.T) {
	tests := []struct {
		method string
		url    string
		path   string
		status string
	}{
		{http.MethodGet, "/api/v1/projects/42/messages?limit=20", "/api/v1/projects/:id/messages", "200"},
		{http.MethodPost, "/api/v1/requests/7/accept", "/api/v1/requests/:id/accept", "403"},
		{http.MethodGet, "/api/v1/projects/9/unread", "/api/v1/projects/:id/unread", "503"},
	}
	r := newMetricsRouter()

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			countBefore := requestCount(tt.method, tt.path, tt.status)
			samplesBefore := latencySamples(tt.method, tt.path)

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.url, nil))

			if got := requestCount(tt.method, tt.path, tt.status) - countBefore; got != 1 {
				t.Errorf("http_requests_total{path=%q,status=%s} grew by %.0f, want 1", tt.path, tt.status, got)
			}
			if got := latencySamples(tt.method, tt.path) - samplesBefore; got != 1 {
				t.Errorf("http_request_duration_seconds{path=%q} grew by %d samples, want 1", tt.path, got)
			}
		})
	}

	if m := series(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/api/v1/projects/42/messages"}); m != nil {
		t.Error("raw URL used as path label; want the route template")
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	before := requestCount(http.MethodGet, noRoute, "404")

	newMetricsRouter().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/nope/123", nil))

	if got := requestCount(http.MethodGet, noRoute, "404") - before; got != 1 {
		t.Errorf("http_requests_total{path=%q} grew by %.0f, want 1", noRoute, got)
	}
	if m := series(telemetry.HTTPRequestsTotal, prometheus.Labels{"path": "/api/v1/nope/123"}); m != nil {
		t.Error("unmatched URL leaked into the path label")
	}
}

func TestMetricsMiddleware_WebsocketCountedNotTimed(t *testing.T) {
	countBefore := requestCount(http.MethodGet, "/ws", "401")
	samplesBefore := latencySamples(http.MethodGet, "/ws")

	req := httptest.NewRequest(http.MethodGet, "/ws?token=x", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	newMetricsRouter().ServeHTTP(httptest.NewRecorder(), req)

	if got := requestCount(http.MethodGet, "/ws", "401") - countBefore; got != 1 {
		t.Errorf("http_requests_total{path=/ws} grew by %.0f, want 1", got)
	}
	if got := latencySamples(http.MethodGet, "/ws") - samplesBefore; got != 0 {
		t.Errorf("websocket upgrade observed in latency histogram (%d samples)", got)
	}
}
