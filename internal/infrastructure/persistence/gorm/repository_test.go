package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmanzanog/share-ledger/internal/application"
	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()
	// Use in-memory SQLite for testing
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := NewGormStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func upsertShare(t *testing.T, store *GormStore, symbol, price string) domain.Share {
	t.Helper()
	share := domain.NewShare(symbol, symbol+" Corp", domain.MustDecimal(price))
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Shares().Upsert(ctx, &share)
	}))
	return share
}

func TestGormStore_Shares(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	apl := upsertShare(t, store, "apl", "90.88")
	upsertShare(t, store, "MST", "80.77")

	updated := domain.NewShare("APL", "Apple", domain.MustDecimal("91.5"))
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Shares().Upsert(ctx, &updated)
	}))
	assert.Equal(t, apl.ID, updated.ID)

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		found, err := tx.Shares().FindBySymbol(ctx, "Apl")
		require.NoError(t, err)
		assert.Equal(t, "91.5", found.Price.String())
		assert.Equal(t, "Apple", found.Name)

		_, err = tx.Shares().FindByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrShareNotFound)

		shares, err := tx.Shares().ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, shares, 2)
		assert.Equal(t, "APL", shares[0].Symbol)
		return nil
	})
	require.NoError(t, err)
}

func TestGormStore_Rollback(t *testing.T) {
	store := setupTestStore(t)
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		share := domain.NewShare("APL", "Apple", domain.MustDecimal("1"))
		require.NoError(t, tx.Shares().Upsert(ctx, &share))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Shares().FindBySymbol(ctx, "APL")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrShareNotFound)
}

func TestGormStore_OneDefaultPortfolioPerOwner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	create := func(p domain.Portfolio) error {
		return store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			return tx.Portfolios().Create(ctx, &p)
		})
	}

	def := domain.NewPortfolio("alice", "default", true)
	require.NoError(t, create(def))
	assert.Error(t, create(domain.NewPortfolio("alice", "again", true)))
	require.NoError(t, create(domain.NewPortfolio("alice", "side", false)))
	require.NoError(t, create(domain.NewPortfolio("alice", "side 2", false)))
	require.NoError(t, create(domain.NewPortfolio("bob", "default", true)))

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		found, err := tx.Portfolios().FindDefault(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, def.ID, found.ID)
		assert.True(t, found.Default)

		list, err := tx.Portfolios().ListByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, list, 3)

		_, err = tx.Portfolios().FindByID(ctx, def.ID, "bob")
		assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestGormStore_LotsOrderedForAllocation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	apl := upsertShare(t, store, "APL", "10")
	p := domain.NewPortfolio("alice", "default", true)

	var ids []string
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Portfolios().Create(ctx, &p))
		// "9" sorts after "10" as text; allocation must compare numerically
		for _, unit := range []string{"9", "10", "100", "9"} {
			lot, err := tx.Positions().CreateLot(ctx, p.ID, apl, domain.MustDecimal(unit))
			require.NoError(t, err)
			ids = append(ids, lot.ID)
		}
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lots, err := tx.Positions().FindOpenLotsForShare(ctx, domain.LotFilter{OwnerID: "alice", Symbol: "APL"})
		require.NoError(t, err)
		require.Len(t, lots, 4)
		assert.Equal(t, ids[2], lots[0].ID)
		assert.Equal(t, ids[1], lots[1].ID)
		assert.ElementsMatch(t, []string{ids[0], ids[3]}, []string{lots[2].ID, lots[3].ID})
		assert.Equal(t, "APL", lots[0].Symbol)

		none, err := tx.Positions().FindOpenLotsForShare(ctx, domain.LotFilter{OwnerID: "bob", Symbol: "APL"})
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestGormStore_LedgerFlow(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	seeder := application.NewSeeder(store, application.DefaultRetryPolicy())
	_, err := seeder.SeedShares(ctx, application.DefaultSeedShares)
	require.NoError(t, err)
	_, err = seeder.SeedDemoOwner(ctx, application.DemoOwnerID)
	require.NoError(t, err)

	ledger := application.NewLedgerService(store, application.DefaultRetryPolicy())
	portfolios, err := ledger.ListPortfolios(ctx, application.DemoOwnerID)
	require.NoError(t, err)
	require.Len(t, portfolios, 1)

	lots, err := ledger.ListPortfolioAssets(ctx, application.DemoOwnerID, portfolios[0].ID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, "50", lots[0].Unit.String())

	trades, err := ledger.ListAssetTrades(ctx, application.DemoOwnerID, lots[0].ID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].IsBuy)
	assert.Equal(t, "9088.00", trades[0].Amount.String())
	assert.False(t, trades[1].IsBuy)

	_, err = ledger.SellBySymbol(ctx, application.SellBySymbolRequest{OwnerID: application.DemoOwnerID, Symbol: "APL", Unit: domain.MustDecimal("50.5")})
	assert.ErrorIs(t, err, domain.ErrInsufficientAssets)

	fills, err := ledger.SellBySymbol(ctx, application.SellBySymbolRequest{OwnerID: application.DemoOwnerID, Symbol: "APL", Unit: domain.MustDecimal("50")})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.False(t, fills[0].Asset.Active)

	_, err = ledger.SellLot(ctx, application.SellLotRequest{OwnerID: application.DemoOwnerID, AssetID: lots[0].ID, Unit: domain.MustDecimal("1")})
	assert.ErrorIs(t, err, domain.ErrAssetClosed)
}

func TestGormStore_ConcurrentSells(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	upsertShare(t, store, "APL", "10")
	ledger := application.NewLedgerService(store, application.DefaultRetryPolicy())

	_, err := ledger.EnsureDefaultPortfolio(ctx, "alice")
	require.NoError(t, err)
	fill, err := ledger.Buy(ctx, application.BuyRequest{OwnerID: "alice", Symbol: "APL", Unit: domain.MustDecimal("10")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.SellLot(ctx, application.SellLotRequest{OwnerID: "alice", AssetID: fill.Asset.ID, Unit: domain.MustDecimal("10")})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}
