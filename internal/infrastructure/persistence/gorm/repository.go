package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements domain.Store using GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate applies schema changes to the database
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&shareRecord{}, &portfolioRecord{}, &assetRecord{}, &tradeRecord{})
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", tx.Error))
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, &gormTx{db: tx}); err != nil {
		tx.Rollback()
		return classify(err)
	}

	if err := tx.Commit().Error; err != nil {
		slog.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classify turns SQLite lock contention into domain.ErrTxConflict.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return fmt.Errorf("%w: %v", domain.ErrTxConflict, err)
	}
	return err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Shares() domain.ShareCatalog       { return (*shareRepository)(t) }
func (t *gormTx) Portfolios() domain.PortfolioStore { return (*portfolioRepository)(t) }
func (t *gormTx) Positions() domain.PositionStore   { return (*positionRepository)(t) }
func (t *gormTx) Trades() domain.TradeLog           { return (*tradeRepository)(t) }

// Shares

type shareRepository gormTx

func (r *shareRepository) first(ctx context.Context, query string, arg any) (*domain.Share, error) {
	var rec shareRecord
	if err := r.db.WithContext(ctx).First(&rec, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to find share: %w", err)
	}
	share := rec.toDomain()
	return &share, nil
}

func (r *shareRepository) FindBySymbol(ctx context.Context, symbol string) (*domain.Share, error) {
	return r.first(ctx, "symbol = ?", domain.NormalizeSymbol(symbol))
}

func (r *shareRepository) FindByID(ctx context.Context, id string) (*domain.Share, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *shareRepository) ListActive(ctx context.Context) ([]domain.Share, error) {
	var recs []shareRecord
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("symbol").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	shares := make([]domain.Share, 0, len(recs))
	for _, rec := range recs {
		shares = append(shares, rec.toDomain())
	}
	return shares, nil
}

func (r *shareRepository) Upsert(ctx context.Context, share *domain.Share) error {
	share.Symbol = domain.NormalizeSymbol(share.Symbol)
	rec := shareRecord{
		ID:        share.ID,
		Symbol:    share.Symbol,
		Name:      share.Name,
		Price:     share.Price,
		Active:    share.Active,
		UpdatedAt: share.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "active", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		slog.ErrorContext(ctx, "Failed to save share", "symbol", share.Symbol, "error", err)
		return fmt.Errorf("failed to save share: %w", err)
	}

	// On conflict the stored id wins.
	var stored shareRecord
	if err := r.db.WithContext(ctx).Select("id").First(&stored, "symbol = ?", share.Symbol).Error; err != nil {
		return fmt.Errorf("failed to reload share: %w", err)
	}
	share.ID = stored.ID
	return nil
}

// Portfolios

type portfolioRepository gormTx

func (r *portfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	rec := newPortfolioRecord(*p)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		slog.ErrorContext(ctx, "Failed to create portfolio", "portfolio_id", p.ID, "owner", p.OwnerID, "error", err)
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

func (r *portfolioRepository) first(ctx context.Context, query string, args ...any) (*domain.Portfolio, error) {
	var rec portfolioRecord
	if err := r.db.WithContext(ctx).Where(query, args...).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("failed to find portfolio: %w", err)
	}
	p := rec.toDomain()
	return &p, nil
}

func (r *portfolioRepository) FindByID(ctx context.Context, id, ownerID string) (*domain.Portfolio, error) {
	return r.first(ctx, "id = ? AND owner_id = ?", id, ownerID)
}

func (r *portfolioRepository) FindDefault(ctx context.Context, ownerID string) (*domain.Portfolio, error) {
	return r.first(ctx, "default_owner = ?", ownerID)
}

func (r *portfolioRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	var recs []portfolioRecord
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	portfolios := make([]domain.Portfolio, 0, len(recs))
	for _, rec := range recs {
		portfolios = append(portfolios, rec.toDomain())
	}
	return portfolios, nil
}

// Positions

type positionRepository gormTx

func (r *positionRepository) assets(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&assetRecord{}).
		Select("assets.*, shares.symbol AS symbol").
		Joins("JOIN shares ON shares.id = assets.share_id").
		Joins("JOIN portfolios ON portfolios.id = assets.portfolio_id")
}

func scanRows(q *gorm.DB) ([]domain.Asset, error) {
	var rows []assetRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	assets := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		assets = append(assets, row.toDomain())
	}
	return assets, nil
}

func (r *positionRepository) CreateLot(ctx context.Context, portfolioID string, share domain.Share, unit domain.Decimal) (*domain.Asset, error) {
	asset, err := domain.NewAsset(portfolioID, share, unit)
	if err != nil {
		return nil, err
	}
	rec := newAssetRecord(asset)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		slog.ErrorContext(ctx, "Failed to create lot", "portfolio_id", portfolioID, "share_id", share.ID, "error", err)
		return nil, fmt.Errorf("failed to create lot: %w", err)
	}
	return &asset, nil
}

func (r *positionRepository) FindOpenLotsForShare(ctx context.Context, filter domain.LotFilter) ([]domain.Asset, error) {
	q := r.assets(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("assets.active = ? AND shares.symbol = ? AND portfolios.owner_id = ?", true, domain.NormalizeSymbol(filter.Symbol), filter.OwnerID)
	if filter.PortfolioID != "" {
		q = q.Where("assets.portfolio_id = ?", filter.PortfolioID)
	}

	lots, err := scanRows(q)
	if err != nil {
		return nil, err
	}
	domain.SortLotsForAllocation(lots)
	return lots, nil
}

func (r *positionRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Asset, error) {
	lots, err := scanRows(r.assets(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, args...).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, domain.ErrAssetNotFound
	}
	return &lots[0], nil
}

func (r *positionRepository) ReduceLot(ctx context.Context, assetID string, unit domain.Decimal) (*domain.Asset, error) {
	asset, err := r.findOne(ctx, "assets.id = ?", assetID)
	if err != nil {
		return nil, err
	}
	if err := asset.Reduce(unit); err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Model(&assetRecord{}).Where("id = ?", assetID).Updates(map[string]any{
		"unit":       asset.Unit,
		"active":     asset.Active,
		"updated_at": asset.UpdatedAt,
	}).Error
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reduce lot", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("failed to reduce lot: %w", err)
	}
	return asset, nil
}

func (r *positionRepository) FindLotByID(ctx context.Context, assetID, ownerID string) (*domain.Asset, error) {
	return r.findOne(ctx, "assets.id = ? AND portfolios.owner_id = ?", assetID, ownerID)
}

func (r *positionRepository) ListOpenLots(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	return scanRows(r.assets(ctx).
		Where("assets.active = ? AND assets.portfolio_id = ?", true, portfolioID).
		Order("assets.created_at, assets.id"))
}

// Trades

type tradeRepository gormTx

func (r *tradeRepository) RecordFill(ctx context.Context, assetID string, unit domain.Decimal, isBuy bool, sharePrice domain.Decimal) (*domain.Trade, error) {
	trade, err := domain.NewTrade(assetID, unit, isBuy, sharePrice)
	if err != nil {
		return nil, err
	}
	rec := tradeRecord{
		ID:         trade.ID,
		AssetID:    trade.AssetID,
		Unit:       trade.Unit,
		IsBuy:      trade.IsBuy,
		SharePrice: trade.SharePrice,
		Amount:     trade.Amount,
		CreatedAt:  trade.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		slog.ErrorContext(ctx, "Failed to record trade", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}
	return &trade, nil
}

func (r *tradeRepository) ListByAsset(ctx context.Context, assetID string) ([]domain.Trade, error) {
	var recs []tradeRecord
	if err := r.db.WithContext(ctx).Where("asset_id = ?", assetID).Order("seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	trades := make([]domain.Trade, 0, len(recs))
	for _, rec := range recs {
		trades = append(trades, rec.toDomain())
	}
	return trades, nil
}
