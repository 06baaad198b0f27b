package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/sqldb/migrations"
	"github.com/pressly/goose/v3"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.PostgresFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "postgres"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

func (d *PostgresDialect) UpsertShare(ctx context.Context, tx *sql.Tx, share *domain.Share) error {
	query := `
		INSERT INTO shares (id, symbol, name, price, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	return tx.QueryRowContext(ctx, query,
		share.ID, share.Symbol, share.Name, share.Price, boolToInt(share.Active), share.UpdatedAt,
	).Scan(&share.ID)
}

// IsConflict treats unique violations as conflicts too: under concurrency they
// come from a racing writer that inserted the same default portfolio first.
func (d *PostgresDialect) IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
		return true
	}
	return false
}
