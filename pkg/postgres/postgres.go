package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgreDB struct {
	Pool     *pgxpool.Pool
	DBConfig *pgxpool.Config
}

type Config interface {
	GetDSN() string
}

// PoolSettings tunes the pgx pool. Zero values keep the pgx defaults.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func New(ctx context.Context, config Config, settings PoolSettings) (*PostgreDB, error) {
	dbConfig, err := pgxpool.ParseConfig(config.GetDSN())
	if err != nil {
		return nil, err
	}
	applySettings(dbConfig, settings)

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	// Ping the database
	if err = pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgreDB{
		Pool:     pool,
		DBConfig: dbConfig,
	}, nil
}

func applySettings(dbConfig *pgxpool.Config, s PoolSettings) {
	if s.MaxConns > 0 {
		dbConfig.MaxConns = s.MaxConns
	}
	if s.MinConns > 0 {
		dbConfig.MinConns = s.MinConns
	}
	if s.MaxConnLifetime > 0 {
		dbConfig.MaxConnLifetime = s.MaxConnLifetime
	}
	if s.MaxConnIdleTime > 0 {
		dbConfig.MaxConnIdleTime = s.MaxConnIdleTime
	}
}
