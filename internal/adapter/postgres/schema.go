package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the per-bus location and status tables when they
// do not exist yet. Each bus gets its own pair of tables; the slug is
// validated by config before it reaches this point.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, slug string) error {
	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s_locations (
				id BIGSERIAL PRIMARY KEY,
				bus_id TEXT NOT NULL,
				latitude DOUBLE PRECISION NOT NULL,
				longitude DOUBLE PRECISION NOT NULL,
				speed_kph INTEGER NOT NULL DEFAULT 0,
				heading DOUBLE PRECISION NOT NULL DEFAULT 0,
				captured_at TIMESTAMPTZ NOT NULL,
				accuracy_m DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);`, slug),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_locations_captured_at_idx
				ON %s_locations (captured_at DESC);`, slug, slug),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s_status (
				bus_id TEXT PRIMARY KEY,
				state TEXT NOT NULL DEFAULT 'offline',
				trip_started_at TIMESTAMPTZ,
				trip_ended_at TIMESTAMPTZ,
				last_location_update_at TIMESTAMPTZ,
				owning_connection_id TEXT
			);`, slug),
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema for %s: %w", slug, err)
		}
	}

	return nil
}
