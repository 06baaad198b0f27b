package domain

import "context"

// ShareCatalog looks up tradable instruments. The ledger only reads it;
// Upsert exists for seeding and external price updates.
type ShareCatalog interface {
	FindBySymbol(ctx context.Context, symbol string) (*Share, error)
	FindByID(ctx context.Context, id string) (*Share, error)
	ListActive(ctx context.Context) ([]Share, error)
	Upsert(ctx context.Context, share *Share) error
}

// PortfolioStore persists portfolios. Create must reject a second default
// portfolio for the same owner.
type PortfolioStore interface {
	Create(ctx context.Context, portfolio *Portfolio) error
	FindByID(ctx context.Context, id, ownerID string) (*Portfolio, error)
	FindDefault(ctx context.Context, ownerID string) (*Portfolio, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Portfolio, error)
}

// LotFilter scopes FindOpenLotsForShare. PortfolioID is optional.
type LotFilter struct {
	OwnerID     string
	PortfolioID string
	Symbol      string
}

// PositionStore holds lots. FindOpenLotsForShare returns active lots only,
// in SortLotsForAllocation order.
type PositionStore interface {
	CreateLot(ctx context.Context, portfolioID string, share Share, unit Decimal) (*Asset, error)
	FindOpenLotsForShare(ctx context.Context, filter LotFilter) ([]Asset, error)
	ReduceLot(ctx context.Context, assetID string, unit Decimal) (*Asset, error)
	FindLotByID(ctx context.Context, assetID, ownerID string) (*Asset, error)
	ListOpenLots(ctx context.Context, portfolioID string) ([]Asset, error)
}

// TradeLog is append-only: there is no way to update or delete a trade.
type TradeLog interface {
	RecordFill(ctx context.Context, assetID string, unit Decimal, isBuy bool, sharePrice Decimal) (*Trade, error)
	ListByAsset(ctx context.Context, assetID string) ([]Trade, error)
}

// Tx exposes the stores bound to one storage transaction.
type Tx interface {
	Shares() ShareCatalog
	Portfolios() PortfolioStore
	Positions() PositionStore
	Trades() TradeLog
}

// Store runs units of work. WithinTx commits when fn returns nil and rolls
// back otherwise. Implementations must provide serializable isolation and
// report lost races as ErrTxConflict.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
