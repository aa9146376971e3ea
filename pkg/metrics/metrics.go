package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	ActiveTripsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_trips_total",
			Help: "Whether a bus currently has an active trip (1 or 0)",
		},
		[]string{"bus_id"},
	)

	LocationUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_updates_total",
			Help: "Total number of location updates processed",
		},
		[]string{"bus_id", "status"},
	)

	TripEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_events_total",
			Help: "Total number of trip lifecycle events processed",
		},
		[]string{"bus_id", "event"},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Total number of events fanned out to observers",
		},
		[]string{"event"},
	)

	// Database metrics
	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)
)

// RecordHTTPMetrics records metrics for an HTTP request
func RecordHTTPMetrics(service, method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	HttpRequestsTotal.WithLabelValues(service, method, path, statusStr).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, statusStr).Observe(duration.Seconds())
}

// RecordDBQuery records metrics for a database query
func RecordDBQuery(service, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}
