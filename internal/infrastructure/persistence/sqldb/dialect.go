package sqldb

import (
	"context"
	"database/sql"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

// Dialect holds the SQL that differs between databases.
type Dialect interface {
	Name() string
	Migrate(ctx context.Context, db *sql.DB) error
	// UpsertShare inserts or updates a share by symbol and sets share.ID to
	// the stored identity.
	UpsertShare(ctx context.Context, tx *sql.Tx, share *domain.Share) error
	// IsConflict reports whether err means the transaction lost a race and
	// can be re-run.
	IsConflict(err error) bool
}
