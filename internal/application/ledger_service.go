package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

const defaultPortfolioName = "default"

// BuyRequest opens a new lot. PortfolioID is optional; the owner's default
// portfolio is used when it is empty.
type BuyRequest struct {
	OwnerID     string
	PortfolioID string
	Symbol      string
	Unit        domain.Decimal
}

// SellLotRequest sells against exactly one lot.
type SellLotRequest struct {
	OwnerID string
	AssetID string
	Unit    domain.Decimal
}

// SellBySymbolRequest sells across all of the owner's open lots of a share,
// optionally restricted to one portfolio.
type SellBySymbolRequest struct {
	OwnerID     string
	PortfolioID string
	Symbol      string
	Unit        domain.Decimal
}

// Fill is a lot as it stands after a trade, together with that trade.
type Fill struct {
	Asset domain.Asset `json:"asset"`
	Trade domain.Trade `json:"trade"`
}

// LedgerService executes buys and sells. Every operation runs as a single
// storage transaction, re-run on serialization conflicts.
type LedgerService struct {
	store domain.Store
	retry RetryPolicy
}

func NewLedgerService(store domain.Store, policy RetryPolicy) *LedgerService {
	return &LedgerService{
		store: store,
		retry: policy,
	}
}

// Buy opens a new lot at the share's current price. Buys never merge into an
// existing lot: each lot keeps its own cost basis.
func (s *LedgerService) Buy(ctx context.Context, req BuyRequest) (*Fill, error) {
	var fill *Fill
	err := s.runInTx(ctx, "buy", func(ctx context.Context, tx domain.Tx) error {
		share, err := findTradableShare(ctx, tx, req.Symbol)
		if err != nil {
			return err
		}

		if !domain.ValidUnit(req.Unit) {
			return domain.ErrInvalidQuantity
		}

		portfolio, err := resolvePortfolio(ctx, tx, req.OwnerID, req.PortfolioID)
		if err != nil {
			return err
		}

		asset, err := tx.Positions().CreateLot(ctx, portfolio.ID, *share, req.Unit)
		if err != nil {
			return fmt.Errorf("creating lot: %w", err)
		}

		trade, err := tx.Trades().RecordFill(ctx, asset.ID, req.Unit, true, share.Price)
		if err != nil {
			return fmt.Errorf("recording buy: %w", err)
		}

		fill = &Fill{Asset: *asset, Trade: *trade}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// SellLot sells unit from a single lot owned by the caller.
func (s *LedgerService) SellLot(ctx context.Context, req SellLotRequest) (*Fill, error) {
	var fill *Fill
	err := s.runInTx(ctx, "sell_lot", func(ctx context.Context, tx domain.Tx) error {
		asset, err := tx.Positions().FindLotByID(ctx, req.AssetID, req.OwnerID)
		if err != nil {
			return err
		}

		if !asset.Active {
			return domain.ErrAssetClosed
		}

		if !domain.ValidUnit(req.Unit) {
			return domain.ErrInvalidQuantity
		}

		if req.Unit.Cmp(asset.Unit) > 0 {
			slack, err := req.Unit.Sub(asset.Unit)
			if err != nil {
				return fmt.Errorf("computing slack: %w", err)
			}
			return domain.NewInsufficientError(domain.KindInsufficientLotQuantity, slack)
		}

		f, err := sellFromLot(ctx, tx, asset.ID, asset.ShareID, req.Unit)
		if err != nil {
			return err
		}
		fill = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// SellBySymbol sells unit of a share across the caller's open lots, largest
// lot first. Nothing is written unless the lots can cover the whole request.
func (s *LedgerService) SellBySymbol(ctx context.Context, req SellBySymbolRequest) ([]Fill, error) {
	var fills []Fill
	err := s.runInTx(ctx, "sell_by_symbol", func(ctx context.Context, tx domain.Tx) error {
		fills = nil

		share, err := tx.Shares().FindBySymbol(ctx, domain.NormalizeSymbol(req.Symbol))
		if err != nil {
			return err
		}

		if !domain.ValidUnit(req.Unit) {
			return domain.ErrInvalidQuantity
		}

		if req.PortfolioID != "" {
			if _, err := tx.Portfolios().FindByID(ctx, req.PortfolioID, req.OwnerID); err != nil {
				return err
			}
		}

		lots, err := tx.Positions().FindOpenLotsForShare(ctx, domain.LotFilter{
			OwnerID:     req.OwnerID,
			PortfolioID: req.PortfolioID,
			Symbol:      share.Symbol,
		})
		if err != nil {
			return fmt.Errorf("loading open lots: %w", err)
		}

		plan, err := PlanAllocation(lots, req.Unit)
		if err != nil {
			return err
		}

		fills = make([]Fill, 0, len(plan))
		for _, step := range plan {
			f, err := sellFromLot(ctx, tx, step.Lot.ID, share.ID, step.Unit)
			if err != nil {
				return err
			}
			fills = append(fills, *f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fills, nil
}

// sellFromLot records a sell at the price observed right now and reduces the lot.
func sellFromLot(ctx context.Context, tx domain.Tx, assetID, shareID string, unit domain.Decimal) (*Fill, error) {
	share, err := tx.Shares().FindByID(ctx, shareID)
	if err != nil {
		return nil, err
	}

	trade, err := tx.Trades().RecordFill(ctx, assetID, unit, false, share.Price)
	if err != nil {
		return nil, fmt.Errorf("recording sell: %w", err)
	}

	updated, err := tx.Positions().ReduceLot(ctx, assetID, unit)
	if err != nil {
		return nil, err
	}

	return &Fill{Asset: *updated, Trade: *trade}, nil
}

func findTradableShare(ctx context.Context, tx domain.Tx, symbol string) (*domain.Share, error) {
	share, err := tx.Shares().FindBySymbol(ctx, domain.NormalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	if !share.IsTradable() {
		return nil, domain.ErrShareNotFound
	}
	return share, nil
}

func resolvePortfolio(ctx context.Context, tx domain.Tx, ownerID, portfolioID string) (*domain.Portfolio, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrPortfolioNotFound
	}
	if portfolioID != "" {
		return tx.Portfolios().FindByID(ctx, portfolioID, ownerID)
	}
	return tx.Portfolios().FindDefault(ctx, ownerID)
}

// ListShares returns the active catalog.
func (s *LedgerService) ListShares(ctx context.Context) ([]domain.Share, error) {
	var shares []domain.Share
	err := s.runInTx(ctx, "list_shares", func(ctx context.Context, tx domain.Tx) error {
		var err error
		shares, err = tx.Shares().ListActive(ctx)
		return err
	})
	return shares, err
}

// ListPortfolios returns every portfolio of the owner.
func (s *LedgerService) ListPortfolios(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	var portfolios []domain.Portfolio
	err := s.runInTx(ctx, "list_portfolios", func(ctx context.Context, tx domain.Tx) error {
		var err error
		portfolios, err = tx.Portfolios().ListByOwner(ctx, ownerID)
		return err
	})
	return portfolios, err
}

// ListPortfolioAssets returns the open lots of one of the owner's portfolios.
func (s *LedgerService) ListPortfolioAssets(ctx context.Context, ownerID, portfolioID string) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := s.runInTx(ctx, "list_portfolio_assets", func(ctx context.Context, tx domain.Tx) error {
		portfolio, err := tx.Portfolios().FindByID(ctx, portfolioID, ownerID)
		if err != nil {
			return err
		}
		assets, err = tx.Positions().ListOpenLots(ctx, portfolio.ID)
		return err
	})
	return assets, err
}

// GetAsset returns a lot owned by the caller, open or closed.
func (s *LedgerService) GetAsset(ctx context.Context, ownerID, assetID string) (*domain.Asset, error) {
	var asset *domain.Asset
	err := s.runInTx(ctx, "get_asset", func(ctx context.Context, tx domain.Tx) error {
		var err error
		asset, err = tx.Positions().FindLotByID(ctx, assetID, ownerID)
		return err
	})
	return asset, err
}

// ListAssetTrades returns the fills of a lot in recording order.
func (s *LedgerService) ListAssetTrades(ctx context.Context, ownerID, assetID string) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := s.runInTx(ctx, "list_asset_trades", func(ctx context.Context, tx domain.Tx) error {
		asset, err := tx.Positions().FindLotByID(ctx, assetID, ownerID)
		if err != nil {
			return err
		}
		trades, err = tx.Trades().ListByAsset(ctx, asset.ID)
		return err
	})
	return trades, err
}

// EnsureDefaultPortfolio returns the owner's default portfolio, creating it
// on first use. This is the registration step of a new owner.
func (s *LedgerService) EnsureDefaultPortfolio(ctx context.Context, ownerID string) (*domain.Portfolio, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrPortfolioNotFound
	}

	var portfolio *domain.Portfolio
	err := s.runInTx(ctx, "ensure_default_portfolio", func(ctx context.Context, tx domain.Tx) error {
		existing, err := tx.Portfolios().FindDefault(ctx, ownerID)
		if err == nil {
			portfolio = existing
			return nil
		}
		if kind, ok := domain.KindOf(err); !ok || kind != domain.KindPortfolioNotFound {
			return err
		}

		p := domain.NewPortfolio(ownerID, defaultPortfolioName, true)
		if err := tx.Portfolios().Create(ctx, &p); err != nil {
			return fmt.Errorf("creating default portfolio: %w", err)
		}
		portfolio = &p
		return nil
	})
	return portfolio, err
}

// CreatePortfolio adds a named portfolio. It becomes the default only when
// the owner has none yet.
func (s *LedgerService) CreatePortfolio(ctx context.Context, ownerID, name string) (*domain.Portfolio, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrPortfolioNotFound
	}
	if strings.TrimSpace(name) == "" {
		name = defaultPortfolioName
	}

	var portfolio *domain.Portfolio
	err := s.runInTx(ctx, "create_portfolio", func(ctx context.Context, tx domain.Tx) error {
		isDefault := false
		if _, err := tx.Portfolios().FindDefault(ctx, ownerID); err != nil {
			if kind, ok := domain.KindOf(err); !ok || kind != domain.KindPortfolioNotFound {
				return err
			}
			isDefault = true
		}

		p := domain.NewPortfolio(ownerID, name, isDefault)
		if err := tx.Portfolios().Create(ctx, &p); err != nil {
			return fmt.Errorf("creating portfolio: %w", err)
		}
		portfolio = &p
		return nil
	})
	return portfolio, err
}
