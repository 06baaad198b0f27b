package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DB couples a connection pool with the dialect spoken over it.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		DB:      db,
		Dialect: dialect,
	}
}

// Pool limits applied by Open. Serializable transactions hold their
// connection until commit, so the pool is kept small.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxLifetime = 30 * time.Minute
)

// Open connects through the named database/sql driver and pings the server.
func Open(ctx context.Context, driverName, dsn string, dialect Dialect) (*DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() // Close connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, dialect), nil
}

// WithTx runs fn in a serializable transaction, committing when fn returns nil.
// A panic in fn rolls back and is re-raised.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		rollback(ctx, tx)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.WarnContext(ctx, "Failed to roll back transaction", "error", err)
	}
}
