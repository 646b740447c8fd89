package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Caller is satisfied by both the pool and an open transaction.
type Caller interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKeyType struct{}

var txKey = txKeyType{}

// TxHandler carries a transaction in the context so repository methods run
// inside it when one is open.
type TxHandler struct {
	pool *pgxpool.Pool
}

func NewTxHandler(pool *pgxpool.Pool) *TxHandler {
	return &TxHandler{
		pool: pool,
	}
}

func (t *TxHandler) Begin(ctx context.Context) (context.Context, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	return context.WithValue(ctx, txKey, tx), nil
}

func (t *TxHandler) Commit(ctx context.Context) error {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	if !ok {
		return fmt.Errorf("tx not found in context")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

func (t *TxHandler) Rollback(ctx context.Context) error {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	if !ok {
		return fmt.Errorf("tx not found in context")
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to rollback tx: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction, committing on success.
func (t *TxHandler) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := t.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = t.Rollback(txCtx)
		return err
	}
	return t.Commit(txCtx)
}

func (t *TxHandler) Try(ctx context.Context) Caller {
	v, ok := ctx.Value(txKey).(pgx.Tx)
	if ok {
		return v
	}
	return t.pool
}
