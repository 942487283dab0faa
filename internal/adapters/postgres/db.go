package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// PoolDB adapts a pgxpool.Pool to ports.Database
type PoolDB struct {
	*pgxpool.Pool
}

var _ ports.Database = PoolDB{}

// NewPoolDB wraps pool
func NewPoolDB(pool *pgxpool.Pool) PoolDB {
	return PoolDB{Pool: pool}
}

// InTx runs fn in a read-committed transaction. fn's error rolls back;
// a panic rolls back and is re-raised.
func (db PoolDB) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
