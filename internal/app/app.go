package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/campus-transit/bustrack/config"
	"github.com/campus-transit/bustrack/internal/adapter/http/server"
	wshandler "github.com/campus-transit/bustrack/internal/adapter/http/ws"
	repo "github.com/campus-transit/bustrack/internal/adapter/postgres"
	feedadapter "github.com/campus-transit/bustrack/internal/adapter/rabbit"
	"github.com/campus-transit/bustrack/internal/service/tracker"
	"github.com/campus-transit/bustrack/pkg/logger"
	"github.com/campus-transit/bustrack/pkg/postgres"
	"github.com/campus-transit/bustrack/pkg/rabbit"
	"github.com/campus-transit/bustrack/pkg/trm"
	ws "github.com/campus-transit/bustrack/pkg/wsHub"
)

// App is the single-binary tracker service: WebSocket relay, persistence
// and the REST read side behind one HTTP listener.
type App struct {
	postgresDB *postgres.PostgreDB
	rabbitMQ   *rabbit.RabbitMQ // nil when the event feed is disabled
	connHub    *ws.ConnectionHub
	httpServer *server.API

	cfg config.Config
	log logger.Logger
}

func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	postgresDB, err := postgres.New(ctx, cfg.Database, postgres.PoolSettings{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		log.Error(ctx, "Failed to setup database", err)
		return nil, err
	}

	// Per-bus tables: <slug>_locations and <slug>_status.
	pairs := make(map[string]tracker.StorePair, len(cfg.Fleet.BusIDs()))
	for _, busID := range cfg.Fleet.BusIDs() {
		slug := config.Slug(busID)
		if err := repo.EnsureSchema(ctx, postgresDB.Pool, slug); err != nil {
			log.Error(ctx, "Failed to ensure schema", err, "bus_id", busID)
			return nil, err
		}
		pairs[busID] = tracker.StorePair{
			Locations: repo.NewLocationRepo(postgresDB.Pool, busID, slug),
			Status:    repo.NewStatusRepo(postgresDB.Pool, busID, slug),
		}
	}

	registry := tracker.NewRegistry(pairs)
	txManager := trm.New(postgresDB.Pool)
	connHub := ws.NewConnHub(log)

	var (
		rabbitMQ *rabbit.RabbitMQ
		feed     tracker.EventFeed
	)
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err = rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
		if err != nil {
			log.Error(ctx, "Failed to setup rabbitmq", err)
			return nil, err
		}

		producer, err := feedadapter.NewFeedProducer(rabbitMQ)
		if err != nil {
			log.Error(ctx, "Failed to setup event feed", err)
			return nil, err
		}
		feed = producer
	}

	router := tracker.NewRouter(registry, tracker.NewSessionTracker(), txManager, connHub, feed, log)
	if err := router.InitStatuses(ctx); err != nil {
		log.Error(ctx, "Failed to initialize bus statuses", err)
		return nil, err
	}

	reads := tracker.NewReads(registry, log)
	trackerHub := wshandler.NewTrackerHub(connHub, router, log)

	httpServer, err := server.New(cfg, reads, trackerHub, log)
	if err != nil {
		log.Error(ctx, "Failed to setup http server", err)
		return nil, err
	}

	return &App{
		postgresDB: postgresDB,
		rabbitMQ:   rabbitMQ,
		connHub:    connHub,
		httpServer: httpServer,
		cfg:        cfg,
		log:        log,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.httpServer.Run(ctx, errCh)
	defer func() {
		a.close(ctx)
		a.log.Info(ctx, "tracker service closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info(ctx, "tracker service started", "buses", a.cfg.Fleet.BusIDs())

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (a *App) close(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Warn(ctx, "Failed to gracefully close http server", "error", err.Error())
		}
	}

	if a.connHub != nil {
		a.connHub.CloseAll()
	}

	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(ctx); err != nil {
			a.log.Warn(ctx, "Failed to close rabbitmq connection", "error", err.Error())
		}
	}

	if a.postgresDB != nil && a.postgresDB.Pool != nil {
		a.postgresDB.Pool.Close()
	}
}
