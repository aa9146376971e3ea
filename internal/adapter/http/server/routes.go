package server

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	// System Health
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)

	// Fleet read side
	a.mux.HandleFunc("GET /{$}", a.routes.bus.Root)                            // Service summary
	a.mux.HandleFunc("GET /buses/status", a.routes.bus.FleetStatus)            // Status of every bus
	a.mux.HandleFunc("GET /bus/{bus_id}/locations", a.routes.bus.RecentLocations) // Location history, newest first
	a.mux.HandleFunc("GET /bus/{bus_id}/latest", a.routes.bus.Latest)          // Newest sample plus status

	// WebSocket endpoint shared by driver apps and observers
	a.mux.HandleFunc("GET /ws", a.routes.tracker.HandleWS)

	a.setupSwaggerRoutes()
	a.setupMetricsRoute()
}

// setupSwaggerRoutes configures the Swagger UI endpoint
func (a *API) setupSwaggerRoutes() {
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler())
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func (a *API) setupMetricsRoute() {
	a.mux.Handle("/metrics", promhttp.Handler())
}
