package postgres

import (
	"context"

	"github.com/campus-transit/bustrack/pkg/trm"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxOrDB returns the transaction carried by ctx when the caller runs
// inside trm.Manager.Do, and the bare pool otherwise.
func TxOrDB(ctx context.Context, db *pgxpool.Pool) Querier {
	if tx, ok := ctx.Value(trm.TxKey).(pgx.Tx); ok {
		return tx
	}
	return db
}
