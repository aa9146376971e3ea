package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusRepo holds the single current-status row of one bus.
type StatusRepo struct {
	db    *pgxpool.Pool
	busID string
	table string
}

func NewStatusRepo(db *pgxpool.Pool, busID, slug string) *StatusRepo {
	return &StatusRepo{
		db:    db,
		busID: busID,
		table: slug + "_status",
	}
}

// Init guarantees the status row exists, default offline. Called once
// at startup before any event is processed.
func (r *StatusRepo) Init(ctx context.Context) error {
	const op = "StatusRepo.Init"
	query := fmt.Sprintf(`
		INSERT INTO %s (bus_id, state)
		VALUES ($1, $2)
		ON CONFLICT (bus_id) DO NOTHING;`, r.table)

	start := time.Now()
	_, err := TxOrDB(ctx, r.db).Exec(ctx, query, r.busID, types.StateOffline)
	metrics.RecordDBQuery(serviceName, "status_init", err, time.Since(start))

	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

// Upsert applies a merge-patch to the status row, creating it with
// defaults first when absent. Only the fields set on the patch are
// written; the Clear flags force their columns back to NULL.
func (r *StatusRepo) Upsert(ctx context.Context, patch models.StatusPatch) error {
	const op = "StatusRepo.Upsert"

	if err := r.Init(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if patch.IsEmpty() {
		return nil
	}

	sets := make([]string, 0, 6)
	args := []any{r.busID}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.State != nil {
		sets = append(sets, "state = "+arg(*patch.State))
	}
	if patch.TripStartedAt != nil {
		sets = append(sets, "trip_started_at = "+arg(*patch.TripStartedAt))
	}
	if patch.ClearTripEnded {
		sets = append(sets, "trip_ended_at = NULL")
	} else if patch.TripEndedAt != nil {
		sets = append(sets, "trip_ended_at = "+arg(*patch.TripEndedAt))
	}
	if patch.LastLocationUpdateAt != nil {
		sets = append(sets, "last_location_update_at = "+arg(*patch.LastLocationUpdateAt))
	}
	if patch.ClearOwner {
		sets = append(sets, "owning_connection_id = NULL")
	} else if patch.OwningConnectionID != nil {
		sets = append(sets, "owning_connection_id = "+arg(*patch.OwningConnectionID))
	}

	query := fmt.Sprintf(`
		UPDATE %s SET %s WHERE bus_id = $1;`, r.table, strings.Join(sets, ", "))

	start := time.Now()
	_, err := TxOrDB(ctx, r.db).Exec(ctx, query, args...)
	metrics.RecordDBQuery(serviceName, "status_upsert", err, time.Since(start))

	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

// Get returns the current status, or the default offline stub when no
// row exists yet.
func (r *StatusRepo) Get(ctx context.Context) (models.VehicleStatus, error) {
	const op = "StatusRepo.Get"
	query := fmt.Sprintf(`
		SELECT bus_id, state, trip_started_at, trip_ended_at, last_location_update_at, owning_connection_id
		FROM %s
		WHERE bus_id = $1;`, r.table)

	var st models.VehicleStatus
	start := time.Now()
	err := TxOrDB(ctx, r.db).QueryRow(ctx, query, r.busID).Scan(
		&st.BusID,
		&st.State,
		&st.TripStartedAt,
		&st.TripEndedAt,
		&st.LastLocationUpdateAt,
		&st.OwningConnectionID,
	)
	metrics.RecordDBQuery(serviceName, "status_get", err, time.Since(start))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.DefaultStatus(r.busID), nil
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return models.VehicleStatus{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return st, nil
}

// ClearOwner forces the bus offline when the given connection owns it.
// A no-op for any other owner, which makes disconnect cleanup
// idempotent.
func (r *StatusRepo) ClearOwner(ctx context.Context, connID string) error {
	const op = "StatusRepo.ClearOwner"
	query := fmt.Sprintf(`
		UPDATE %s
		SET state = $2, owning_connection_id = NULL
		WHERE owning_connection_id = $1;`, r.table)

	start := time.Now()
	_, err := TxOrDB(ctx, r.db).Exec(ctx, query, connID, types.StateOffline)
	metrics.RecordDBQuery(serviceName, "status_clear_owner", err, time.Since(start))

	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}
