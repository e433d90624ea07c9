package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner executes fn inside a single database transaction. The context
// passed to fn carries the transaction's connection, so repository calls
// made through it join the transaction via ConnFromContext.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

// NewTxRunner returns a TxRunner backed by pool.
func NewTxRunner(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(context.Context) error) error {
		return InTx(ctx, pool, fn)
	}
}

// InTx runs fn within a transaction on a connection acquired from pool,
// committing on success and rolling back on error. If the context already
// carries a connection the caller owns the transaction and fn runs as-is.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context) error) error {
	if ConnFromContext(ctx) != nil {
		return fn(ctx)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(WithConn(ctx, conn)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
