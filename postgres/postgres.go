package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meikuraledutech/promptflow"
)

// Querier is the subset of pgx used by PGStore.
// *pgxpool.Pool, pgx.Tx and pgxmock pools all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements promptflow.ExecutionStore using PostgreSQL via pgx.
type PGStore struct {
	db Querier
}

// Compile-time check: PGStore must implement promptflow.ExecutionStore.
var _ promptflow.ExecutionStore = (*PGStore)(nil)

// New creates a new PGStore backed by the given pgx pool or transaction.
func New(db Querier) *PGStore {
	return &PGStore{db: db}
}

// isNoRows checks if the error is a "no rows" error from pgx.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
