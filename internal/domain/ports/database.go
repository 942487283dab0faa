package ports

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

// Database is what the postgres store needs from a connection pool.
// Plain reads and single-statement writes go straight through DBTX;
// read-modify-write sequences such as row-locked subscription updates use InTx.
type Database interface {
	DBTX
	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}
