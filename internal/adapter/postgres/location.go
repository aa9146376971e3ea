package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const serviceName = "tracker"

// LocationRepo is the append-only location history of one bus. Each
// bus writes to its own table, which keeps scan cost and blast radius
// per vehicle.
type LocationRepo struct {
	db    *pgxpool.Pool
	busID string
	table string
}

func NewLocationRepo(db *pgxpool.Pool, busID, slug string) *LocationRepo {
	return &LocationRepo{
		db:    db,
		busID: busID,
		table: slug + "_locations",
	}
}

// Append stores one sample. Samples are never updated or deleted.
func (r *LocationRepo) Append(ctx context.Context, sample models.LocationSample) error {
	const op = "LocationRepo.Append"
	query := fmt.Sprintf(`
		INSERT INTO %s (bus_id, latitude, longitude, speed_kph, heading, captured_at, accuracy_m)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`, r.table)

	start := time.Now()
	_, err := TxOrDB(ctx, r.db).Exec(ctx, query,
		sample.BusID,
		sample.Latitude,
		sample.Longitude,
		sample.SpeedKph,
		sample.HeadingDegrees,
		sample.CapturedAt,
		sample.AccuracyMeters,
	)
	metrics.RecordDBQuery(serviceName, "location_append", err, time.Since(start))

	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return nil
}

// Recent returns up to limit samples, newest first.
func (r *LocationRepo) Recent(ctx context.Context, limit int) ([]models.LocationSample, error) {
	const op = "LocationRepo.Recent"
	query := fmt.Sprintf(`
		SELECT bus_id, latitude, longitude, speed_kph, heading, captured_at, accuracy_m
		FROM %s
		ORDER BY captured_at DESC
		LIMIT $1;`, r.table)

	start := time.Now()
	rows, err := TxOrDB(ctx, r.db).Query(ctx, query, limit)
	metrics.RecordDBQuery(serviceName, "location_recent", err, time.Since(start))
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	samples := make([]models.LocationSample, 0, limit)
	for rows.Next() {
		var s models.LocationSample
		if err := rows.Scan(
			&s.BusID,
			&s.Latitude,
			&s.Longitude,
			&s.SpeedKph,
			&s.HeadingDegrees,
			&s.CapturedAt,
			&s.AccuracyMeters,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return samples, nil
}

// Latest returns the most recent sample.
func (r *LocationRepo) Latest(ctx context.Context) (models.LocationSample, error) {
	const op = "LocationRepo.Latest"
	query := fmt.Sprintf(`
		SELECT bus_id, latitude, longitude, speed_kph, heading, captured_at, accuracy_m
		FROM %s
		ORDER BY captured_at DESC
		LIMIT 1;`, r.table)

	var s models.LocationSample
	start := time.Now()
	err := TxOrDB(ctx, r.db).QueryRow(ctx, query).Scan(
		&s.BusID,
		&s.Latitude,
		&s.Longitude,
		&s.SpeedKph,
		&s.HeadingDegrees,
		&s.CapturedAt,
		&s.AccuracyMeters,
	)
	metrics.RecordDBQuery(serviceName, "location_latest", err, time.Since(start))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.LocationSample{}, types.ErrNoLocations
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseQueryFailed)
		return models.LocationSample{}, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return s, nil
}
