package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracleDialect_UpsertShare_QueryGeneration(t *testing.T) {
	wrapper, mock := newMockDB(t, &OracleDialect{})
	share := domain.NewShare("mst", "Microsoft", domain.MustDecimal("80.77"))

	mock.ExpectBegin()
	tx, err := wrapper.Begin()
	require.NoError(t, err)

	mock.ExpectExec(`MERGE INTO shares t`).
		WithArgs(
			"MST",            // 1
			"Microsoft",      // 2
			sqlmock.AnyArg(), // 3 (price)
			1,                // 4
			sqlmock.AnyArg(), // 5 (updated_at)
			share.ID,         // 6
			"MST",            // 7
			"Microsoft",      // 8
			sqlmock.AnyArg(), // 9
			1,                // 10
			sqlmock.AnyArg(), // 11
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id FROM shares WHERE symbol = :1`).
		WithArgs("MST").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(share.ID))

	err = wrapper.Dialect.UpsertShare(context.Background(), tx, &share)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOracleDialect_UpsertShare_MergeError(t *testing.T) {
	wrapper, mock := newMockDB(t, &OracleDialect{})
	share := domain.NewShare("MST", "Microsoft", domain.MustDecimal("80.77"))

	mock.ExpectBegin()
	tx, err := wrapper.Begin()
	require.NoError(t, err)

	mock.ExpectExec(`MERGE INTO shares t`).WillReturnError(errors.New("ORA-00942: table or view does not exist"))

	err = wrapper.Dialect.UpsertShare(context.Background(), tx, &share)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOracleDialect_IsConflict(t *testing.T) {
	d := &OracleDialect{}

	assert.True(t, d.IsConflict(errors.New("ORA-08177: can't serialize access for this transaction")))
	assert.True(t, d.IsConflict(errors.New("ORA-00060: deadlock detected while waiting for resource")))
	assert.True(t, d.IsConflict(errors.New("ORA-00001: unique constraint (SYSTEM.SYS_C008) violated")))
	assert.False(t, d.IsConflict(errors.New("ORA-00942: table or view does not exist")))
	assert.False(t, d.IsConflict(nil))
}

func TestOracleDialect_Migrate_IgnoresExistingObjects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	mock.MatchExpectationsInOrder(true)
	for i := 0; i < 8; i++ {
		mock.ExpectExec(`CREATE`).WillReturnError(errors.New("ORA-00955: name is already used by an existing object"))
	}

	err = (&OracleDialect{}).Migrate(context.Background(), db)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Rebind(t *testing.T) {
	oracle := &repository{dialect: &OracleDialect{}}
	postgres := &repository{dialect: &PostgresDialect{}}
	query := `SELECT * FROM t WHERE a = $1 AND b = $10 AND c = $2`

	assert.Equal(t, `SELECT * FROM t WHERE a = :1 AND b = :10 AND c = :2`, oracle.rebind(query))
	assert.Equal(t, query, postgres.rebind(query))
}
