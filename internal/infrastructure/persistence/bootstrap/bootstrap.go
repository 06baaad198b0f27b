// Package bootstrap opens the store selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/config"
	persistence "github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/gorm"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/memory"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/sqldb"
	_ "github.com/sijms/go-ora/v2"
)

const migrateTimeout = 30 * time.Second

// CloseFunc releases the resources behind a store.
type CloseFunc func() error

// Open connects to the configured database, applies migrations and returns
// the store.
func Open(ctx context.Context, cfg *config.Config) (domain.Store, CloseFunc, error) {
	switch cfg.DBDriver {
	case config.DBDriverPostgres:
		return openSQL(ctx, "pgx", cfg.DBDSN, &sqldb.PostgresDialect{})
	case config.DBDriverOracle:
		return openSQL(ctx, "oracle", cfg.DBDSN, &sqldb.OracleDialect{})
	case config.DBDriverSQLite:
		return openSQLite(cfg.DBDSN)
	case config.DBDriverMemory:
		slog.WarnContext(ctx, "Using in-memory store, data is lost on exit")
		return memory.NewStore(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.DBDriver)
	}
}

func openSQL(ctx context.Context, driverName, dsn string, dialect sqldb.Dialect) (domain.Store, CloseFunc, error) {
	db, err := sqldb.Open(ctx, driverName, dsn, dialect)
	if err != nil {
		return nil, nil, err
	}
	store := sqldb.NewStore(db)

	migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	if err := store.Migrate(migrateCtx); err != nil {
		_ = db.Close() // Close connection if migration fails
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.InfoContext(ctx, "Database ready", "dialect", dialect.Name())
	return store, db.Close, nil
}

func openSQLite(dsn string) (domain.Store, CloseFunc, error) {
	db, err := persistence.OpenSQLite(dsn)
	if err != nil {
		return nil, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	store := persistence.NewGormStore(db)
	if err := store.AutoMigrate(); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database ready", "dialect", "sqlite")
	return store, sqlDB.Close, nil
}
