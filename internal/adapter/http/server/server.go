package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campus-transit/bustrack/config"
	"github.com/campus-transit/bustrack/internal/adapter/http/handler"
	"github.com/campus-transit/bustrack/internal/adapter/http/middleware"
	wshandler "github.com/campus-transit/bustrack/internal/adapter/http/ws"
	"github.com/campus-transit/bustrack/pkg/logger"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
)

const serviceName = "tracker"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	health  *handler.Health
	bus     *handler.Bus
	tracker *wshandler.TrackerHub
}

func New(
	cfg config.Config,
	readService handler.BusReadService,
	trackerHub *wshandler.TrackerHub,
	log logger.Logger,
) (*API, error) {
	if readService == nil {
		return nil, errors.New("read service is required")
	}
	if trackerHub == nil {
		return nil, errors.New("tracker hub is required")
	}

	routes := &handlers{
		health:  handler.NewHealth(serviceName, log),
		bus:     handler.NewBus(readService, cfg.Fleet.BusIDs(), log),
		tracker: trackerHub,
	}

	api := &API{
		mux:    http.NewServeMux(),
		routes: routes,
		m:      middleware.NewMiddleware(log),
		addr:   fmt.Sprintf("0.0.0.0:%s", cfg.Server.Port),
		cfg:    cfg,
		log:    log,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	return api, nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.Metrics(serviceName)(a.m.Logging(a.mux)))
}
