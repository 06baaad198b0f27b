package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/sqldb/migrations"
)

type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) Migrate(ctx context.Context, db *sql.DB) error {
	// Goose does not support Oracle natively in a way that is easy to cross-compile with go-ora.
	content, err := migrations.OracleFS.ReadFile("oracle/20240101000000_init.sql")
	if err != nil {
		return fmt.Errorf("reading migration file: %w", err)
	}

	// Split statements by '/' which is standard in Oracle scripts
	statements := strings.Split(string(content), "/")

	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			// ORA-00955: name is already used by an existing object
			if !strings.Contains(err.Error(), "ORA-00955") {
				return fmt.Errorf("migrating: %s: %w", stmt, err)
			}
		}
	}
	return nil
}

func (d *OracleDialect) UpsertShare(ctx context.Context, tx *sql.Tx, share *domain.Share) error {
	query := `MERGE INTO shares t
             USING (SELECT :1 as symbol_val FROM dual) s
             ON (t.symbol = s.symbol_val)
             WHEN MATCHED THEN
               UPDATE SET name = :2, price = :3, active = :4, updated_at = :5
             WHEN NOT MATCHED THEN
               INSERT (id, symbol, name, price, active, updated_at)
               VALUES (:6, :7, :8, :9, :10, :11)`

	active := boolToInt(share.Active)
	_, err := tx.ExecContext(ctx, query,
		share.Symbol,    // 1
		share.Name,      // 2 (UPDATE)
		share.Price,     // 3
		active,          // 4
		share.UpdatedAt, // 5
		share.ID,        // 6 (INSERT)
		share.Symbol,    // 7
		share.Name,      // 8
		share.Price,     // 9
		active,          // 10
		share.UpdatedAt, // 11
	)
	if err != nil {
		return err
	}

	// MERGE has no RETURNING clause
	return tx.QueryRowContext(ctx, `SELECT id FROM shares WHERE symbol = :1`, share.Symbol).Scan(&share.ID)
}

var oracleConflictCodes = []string{
	"ORA-08177", // can't serialize access for this transaction
	"ORA-00060", // deadlock detected
	"ORA-00001", // unique constraint violated
}

func (d *OracleDialect) IsConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range oracleConflictCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
