package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

// DemoOwnerID owns the demo portfolio created by SeedDemoOwner.
const DemoOwnerID = "mark@example.com"

// SeedShare is a catalog entry to create when missing.
type SeedShare struct {
	Symbol string
	Name   string
	Price  string
}

var DefaultSeedShares = []SeedShare{
	{Symbol: "APL", Name: "Apple", Price: "90.88"},
	{Symbol: "MST", Name: "Microsoft", Price: "80.77"},
	{Symbol: "GOG", Name: "Google", Price: "70.66"},
	{Symbol: "FBK", Name: "Facebook", Price: "60.55"},
}

// Seeder fills an empty store with a catalog and one demo owner.
type Seeder struct {
	ledger *LedgerService
	store  domain.Store
	retry  RetryPolicy
}

func NewSeeder(store domain.Store, policy RetryPolicy) *Seeder {
	return &Seeder{
		ledger: NewLedgerService(store, policy),
		store:  store,
		retry:  policy,
	}
}

// SeedShares creates the missing shares and returns how many were created.
// Existing symbols are left alone, including their price.
func (s *Seeder) SeedShares(ctx context.Context, shares []SeedShare) (int, error) {
	created := 0
	err := runInTx(ctx, s.store, s.retry, "seed_shares", func(ctx context.Context, tx domain.Tx) error {
		created = 0
		for _, seed := range shares {
			price, err := domain.NewDecimalFromString(seed.Price)
			if err != nil {
				return fmt.Errorf("share %s: %w", seed.Symbol, err)
			}

			_, err = tx.Shares().FindBySymbol(ctx, domain.NormalizeSymbol(seed.Symbol))
			if err == nil {
				continue
			}
			if kind, ok := domain.KindOf(err); !ok || kind != domain.KindShareNotFound {
				return err
			}

			share := domain.NewShare(seed.Symbol, seed.Name, price)
			if err := tx.Shares().Upsert(ctx, &share); err != nil {
				return fmt.Errorf("creating share %s: %w", share.Symbol, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Seeded shares", "created", created, "requested", len(shares))
	return created, nil
}

// SeedDemoOwner gives ownerID a default portfolio holding one APL lot of 50,
// backed by a buy of 100 and a sell of 50. It does nothing when the default
// portfolio already holds lots.
func (s *Seeder) SeedDemoOwner(ctx context.Context, ownerID string) ([]domain.Trade, error) {
	portfolio, err := s.ledger.EnsureDefaultPortfolio(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	lots, err := s.ledger.ListPortfolioAssets(ctx, ownerID, portfolio.ID)
	if err != nil {
		return nil, err
	}
	if len(lots) > 0 {
		slog.InfoContext(ctx, "Demo owner already seeded", "owner", ownerID, "lots", len(lots))
		return nil, nil
	}

	bought, err := s.ledger.Buy(ctx, BuyRequest{
		OwnerID:     ownerID,
		PortfolioID: portfolio.ID,
		Symbol:      "APL",
		Unit:        domain.NewDecimalFromInt(100),
	})
	if err != nil {
		return nil, fmt.Errorf("seeding buy: %w", err)
	}

	sold, err := s.ledger.SellLot(ctx, SellLotRequest{
		OwnerID: ownerID,
		AssetID: bought.Asset.ID,
		Unit:    domain.NewDecimalFromInt(50),
	})
	if err != nil {
		return nil, fmt.Errorf("seeding sell: %w", err)
	}

	slog.InfoContext(ctx, "Seeded demo owner", "owner", ownerID, "asset_id", sold.Asset.ID)
	return []domain.Trade{bought.Trade, sold.Trade}, nil
}
