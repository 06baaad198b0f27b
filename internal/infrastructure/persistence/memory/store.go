package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

type state struct {
	shares     map[string]domain.Share
	symbols    map[string]string
	portfolios map[string]domain.Portfolio
	defaults   map[string]string
	assets     map[string]domain.Asset
	trades     map[string][]domain.Trade
	lastStamp  time.Time
}

func newState() *state {
	return &state{
		shares:     make(map[string]domain.Share),
		symbols:    make(map[string]string),
		portfolios: make(map[string]domain.Portfolio),
		defaults:   make(map[string]string),
		assets:     make(map[string]domain.Asset),
		trades:     make(map[string][]domain.Trade),
	}
}

func (s *state) clone() *state {
	c := &state{
		shares:     maps.Clone(s.shares),
		symbols:    maps.Clone(s.symbols),
		portfolios: maps.Clone(s.portfolios),
		defaults:   maps.Clone(s.defaults),
		assets:     maps.Clone(s.assets),
		trades:     make(map[string][]domain.Trade, len(s.trades)),
		lastStamp:  s.lastStamp,
	}
	for id, t := range s.trades {
		c.trades[id] = slices.Clone(t)
	}
	return c
}

// stamp returns a strictly increasing timestamp so that creation order is
// preserved even when the clock does not advance between two writes.
func (s *state) stamp() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Nanosecond)
	}
	s.lastStamp = now
	return now
}

// Store keeps the ledger in process memory. Transactions run one at a time
// against a private copy of the state that replaces the shared state on
// commit, so a failed unit of work leaves nothing behind.
type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = work
	return nil
}

type tx struct {
	st *state
}

func (t *tx) Shares() domain.ShareCatalog       { return t }
func (t *tx) Portfolios() domain.PortfolioStore { return (*portfolioStore)(t) }
func (t *tx) Positions() domain.PositionStore   { return (*positionStore)(t) }
func (t *tx) Trades() domain.TradeLog           { return (*tradeLog)(t) }

// Share catalog

func (t *tx) FindBySymbol(ctx context.Context, symbol string) (*domain.Share, error) {
	id, ok := t.st.symbols[domain.NormalizeSymbol(symbol)]
	if !ok {
		return nil, domain.ErrShareNotFound
	}
	return t.FindByID(ctx, id)
}

func (t *tx) FindByID(ctx context.Context, id string) (*domain.Share, error) {
	share, ok := t.st.shares[id]
	if !ok {
		return nil, domain.ErrShareNotFound
	}
	return &share, nil
}

func (t *tx) ListActive(ctx context.Context) ([]domain.Share, error) {
	shares := make([]domain.Share, 0, len(t.st.shares))
	for _, share := range t.st.shares {
		if share.Active {
			shares = append(shares, share)
		}
	}
	slices.SortFunc(shares, func(a, b domain.Share) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return shares, nil
}

func (t *tx) Upsert(ctx context.Context, share *domain.Share) error {
	share.Symbol = domain.NormalizeSymbol(share.Symbol)
	if !share.IsValid() {
		return fmt.Errorf("invalid share %q", share.Symbol)
	}
	if existingID, ok := t.st.symbols[share.Symbol]; ok && existingID != share.ID {
		// Symbols are immutable and unique: keep the original identity.
		share.ID = existingID
	}
	if old, ok := t.st.shares[share.ID]; ok && old.Symbol != share.Symbol {
		return fmt.Errorf("share %s: symbol cannot change from %s to %s", share.ID, old.Symbol, share.Symbol)
	}
	t.st.shares[share.ID] = *share
	t.st.symbols[share.Symbol] = share.ID
	return nil
}

// Portfolios

type portfolioStore tx

func (p *portfolioStore) Create(ctx context.Context, portfolio *domain.Portfolio) error {
	if _, exists := p.st.portfolios[portfolio.ID]; exists {
		return fmt.Errorf("portfolio %s already exists", portfolio.ID)
	}
	if portfolio.Default {
		if existing, ok := p.st.defaults[portfolio.OwnerID]; ok {
			return fmt.Errorf("owner %s already has default portfolio %s", portfolio.OwnerID, existing)
		}
		p.st.defaults[portfolio.OwnerID] = portfolio.ID
	}
	p.st.portfolios[portfolio.ID] = *portfolio
	return nil
}

func (p *portfolioStore) FindByID(ctx context.Context, id, ownerID string) (*domain.Portfolio, error) {
	portfolio, ok := p.st.portfolios[id]
	if !ok || !portfolio.OwnedBy(ownerID) {
		return nil, domain.ErrPortfolioNotFound
	}
	return &portfolio, nil
}

func (p *portfolioStore) FindDefault(ctx context.Context, ownerID string) (*domain.Portfolio, error) {
	id, ok := p.st.defaults[ownerID]
	if !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	return p.FindByID(ctx, id, ownerID)
}

func (p *portfolioStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	portfolios := make([]domain.Portfolio, 0)
	for _, portfolio := range p.st.portfolios {
		if portfolio.OwnedBy(ownerID) {
			portfolios = append(portfolios, portfolio)
		}
	}
	slices.SortFunc(portfolios, func(a, b domain.Portfolio) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return portfolios, nil
}

// Positions

type positionStore tx

func (p *positionStore) CreateLot(ctx context.Context, portfolioID string, share domain.Share, unit domain.Decimal) (*domain.Asset, error) {
	if _, ok := p.st.portfolios[portfolioID]; !ok {
		return nil, domain.ErrPortfolioNotFound
	}
	if _, ok := p.st.shares[share.ID]; !ok {
		return nil, domain.ErrShareNotFound
	}

	asset, err := domain.NewAsset(portfolioID, share, unit)
	if err != nil {
		return nil, err
	}
	asset.CreatedAt = p.st.stamp()
	asset.UpdatedAt = asset.CreatedAt

	p.st.assets[asset.ID] = asset
	return &asset, nil
}

func (p *positionStore) FindOpenLotsForShare(ctx context.Context, filter domain.LotFilter) ([]domain.Asset, error) {
	symbol := domain.NormalizeSymbol(filter.Symbol)
	lots := make([]domain.Asset, 0)
	for _, asset := range p.st.assets {
		if !asset.Active || asset.Symbol != symbol {
			continue
		}
		if filter.PortfolioID != "" && asset.PortfolioID != filter.PortfolioID {
			continue
		}
		portfolio, ok := p.st.portfolios[asset.PortfolioID]
		if !ok || !portfolio.OwnedBy(filter.OwnerID) {
			continue
		}
		lots = append(lots, asset)
	}
	domain.SortLotsForAllocation(lots)
	return lots, nil
}

func (p *positionStore) ReduceLot(ctx context.Context, assetID string, unit domain.Decimal) (*domain.Asset, error) {
	asset, ok := p.st.assets[assetID]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	if err := asset.Reduce(unit); err != nil {
		return nil, err
	}
	p.st.assets[assetID] = asset
	return &asset, nil
}

func (p *positionStore) FindLotByID(ctx context.Context, assetID, ownerID string) (*domain.Asset, error) {
	asset, ok := p.st.assets[assetID]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	portfolio, ok := p.st.portfolios[asset.PortfolioID]
	if !ok || !portfolio.OwnedBy(ownerID) {
		return nil, domain.ErrAssetNotFound
	}
	return &asset, nil
}

func (p *positionStore) ListOpenLots(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	lots := make([]domain.Asset, 0)
	for _, asset := range p.st.assets {
		if asset.Active && asset.PortfolioID == portfolioID {
			lots = append(lots, asset)
		}
	}
	slices.SortFunc(lots, func(a, b domain.Asset) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return lots, nil
}

// Trade log

type tradeLog tx

func (l *tradeLog) RecordFill(ctx context.Context, assetID string, unit domain.Decimal, isBuy bool, sharePrice domain.Decimal) (*domain.Trade, error) {
	if _, ok := l.st.assets[assetID]; !ok {
		return nil, domain.ErrAssetNotFound
	}
	trade, err := domain.NewTrade(assetID, unit, isBuy, sharePrice)
	if err != nil {
		return nil, err
	}
	trade.CreatedAt = l.st.stamp()
	l.st.trades[assetID] = append(l.st.trades[assetID], trade)
	return &trade, nil
}

func (l *tradeLog) ListByAsset(ctx context.Context, assetID string) ([]domain.Trade, error) {
	trades := make([]domain.Trade, len(l.st.trades[assetID]))
	copy(trades, l.st.trades[assetID])
	return trades, nil
}
