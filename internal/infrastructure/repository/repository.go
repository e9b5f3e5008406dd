package repository

import (
	"context"
	"database/sql"

	"github.com/akshaykankal/facto/internal/infrastructure/database"
)

// TxRunner runs fn inside a retried transaction; *database.DB implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(*sql.Tx) error) error
}

type Repository struct {
	tx TxRunner
	*Queries
}

// NewRepository issues plain queries through db (usually the breaker-guarded
// pool) and transactions through tx.
func NewRepository(db database.Querier, tx TxRunner) *Repository {
	return &Repository{
		tx:      tx,
		Queries: New(db),
	}
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(*Queries) error) error {
	return r.tx.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(r.Queries.WithTx(tx))
	})
}
