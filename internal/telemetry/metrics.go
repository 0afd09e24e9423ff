// Package telemetry provides application-level observability for projecthub.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<PHUB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Chat message, fan-out and connection metrics
//   - Join request transition outcomes
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:id/messages)
// rather than the raw request URL. Chat metrics never carry a project or user id.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and buckets
// from 5 ms to 30 s.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Chat metrics.
//
// ChatMessagesSentTotal counts messages committed by the message service.
//
// ChatFanoutDeliveriesTotal is a CounterVec with label {result}:
//   - "delivered": the event was queued on a connection's send buffer
//   - "dropped":   the connection's send buffer was full; the event was discarded
//   - "publish_error": the cross-process broker rejected the publish
//
// Example PromQL queries:
//   - Drop ratio:  rate(chat_fanout_deliveries_total{result="dropped"}[5m]) / rate(chat_fanout_deliveries_total[5m])
//
// ChatWSConnections is the number of open websocket connections in this process.
// ChatRoomConnections is the number of (connection, room) subscriptions in this process.
var (
	ChatMessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages persisted.",
		},
	)

	ChatFanoutDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Total number of room event deliveries to connections, by result.",
		},
		[]string{"result"},
	)

	ChatWSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Current number of open websocket connections.",
		},
	)

	ChatRoomConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_room_connections",
			Help: "Current number of connection subscriptions across all rooms.",
		},
	)
)

// JoinRequestTransitionsTotal is a CounterVec with labels {action, outcome}.
// action is one of create, accept, reject; outcome is one of created,
// already_exists, accepted, rejected, forbidden, invalid.
var JoinRequestTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "join_request_transitions_total",
		Help: "Total number of join request operations, by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
