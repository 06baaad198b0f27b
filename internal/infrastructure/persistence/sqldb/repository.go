package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

// Store implements domain.Store on database/sql. Each unit of work is one
// serializable transaction; lots are read with FOR UPDATE before they change.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Dialect.Migrate(ctx, s.db.DB)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &repository{tx: tx, dialect: s.db.Dialect})
	})
	if err != nil && s.db.Dialect.IsConflict(err) {
		return fmt.Errorf("%w: %v", domain.ErrTxConflict, err)
	}
	return err
}

// repository binds the ledger stores to one transaction.
type repository struct {
	tx      *sql.Tx
	dialect Dialect
}

func (r *repository) Shares() domain.ShareCatalog       { return (*shareRepository)(r) }
func (r *repository) Portfolios() domain.PortfolioStore { return (*portfolioRepository)(r) }
func (r *repository) Positions() domain.PositionStore   { return (*positionRepository)(r) }
func (r *repository) Trades() domain.TradeLog           { return (*tradeRepository)(r) }

func (r *repository) rebind(query string) string {
	if r.dialect.Name() == "oracle" {
		// descending so $1 does not clobber $10
		for i := 20; i >= 1; i-- {
			query = strings.ReplaceAll(query, fmt.Sprintf("$%d", i), fmt.Sprintf(":%d", i))
		}
	}
	return query
}

// lockAssets locks only the asset rows of a joined select.
func (r *repository) lockAssets() string {
	if r.dialect.Name() == "oracle" {
		return "FOR UPDATE OF a.unit"
	}
	return "FOR UPDATE OF a"
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("Failed to close rows", "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Shares

type shareRepository repository

const shareColumns = `id, symbol, name, price, active, updated_at`

func scanShare(row rowScanner) (*domain.Share, error) {
	var share domain.Share
	var active int64
	if err := row.Scan(&share.ID, &share.Symbol, &share.Name, &share.Price, &active, &share.UpdatedAt); err != nil {
		return nil, err
	}
	share.Active = active == 1
	return &share, nil
}

func (r *shareRepository) findOne(ctx context.Context, where string, arg any) (*domain.Share, error) {
	query := (*repository)(r).rebind(`SELECT ` + shareColumns + ` FROM shares WHERE ` + where)
	share, err := scanShare(r.tx.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrShareNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying share: %w", err)
	}
	return share, nil
}

func (r *shareRepository) FindBySymbol(ctx context.Context, symbol string) (*domain.Share, error) {
	return r.findOne(ctx, `symbol = $1`, domain.NormalizeSymbol(symbol))
}

func (r *shareRepository) FindByID(ctx context.Context, id string) (*domain.Share, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *shareRepository) ListActive(ctx context.Context) ([]domain.Share, error) {
	rows, err := r.tx.QueryContext(ctx, `SELECT `+shareColumns+` FROM shares WHERE active = 1 ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying shares: %w", err)
	}
	defer closeRows(rows)

	shares := make([]domain.Share, 0)
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning share: %w", err)
		}
		shares = append(shares, *share)
	}
	return shares, rows.Err()
}

func (r *shareRepository) Upsert(ctx context.Context, share *domain.Share) error {
	share.Symbol = domain.NormalizeSymbol(share.Symbol)
	if err := r.dialect.UpsertShare(ctx, r.tx, share); err != nil {
		slog.ErrorContext(ctx, "Failed to save share", "symbol", share.Symbol, "error", err)
		return fmt.Errorf("upsert share: %w", err)
	}
	return nil
}

// Portfolios

type portfolioRepository repository

const portfolioColumns = `id, owner_id, name, is_default, created_at`

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var isDefault int64
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &isDefault, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Default = isDefault == 1
	return &p, nil
}

func (r *portfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	defaultOwner := sql.NullString{String: p.OwnerID, Valid: p.Default}
	query := (*repository)(r).rebind(`
		INSERT INTO portfolios (id, owner_id, name, is_default, default_owner, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if _, err := r.tx.ExecContext(ctx, query, p.ID, p.OwnerID, p.Name, boolToInt(p.Default), defaultOwner, p.CreatedAt); err != nil {
		slog.ErrorContext(ctx, "Failed to create portfolio", "portfolio_id", p.ID, "owner", p.OwnerID, "error", err)
		return fmt.Errorf("insert portfolio: %w", err)
	}
	return nil
}

func (r *portfolioRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Portfolio, error) {
	query := (*repository)(r).rebind(`SELECT ` + portfolioColumns + ` FROM portfolios WHERE ` + where)
	p, err := scanPortfolio(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying portfolio: %w", err)
	}
	return p, nil
}

func (r *portfolioRepository) FindByID(ctx context.Context, id, ownerID string) (*domain.Portfolio, error) {
	return r.findOne(ctx, `id = $1 AND owner_id = $2`, id, ownerID)
}

func (r *portfolioRepository) FindDefault(ctx context.Context, ownerID string) (*domain.Portfolio, error) {
	return r.findOne(ctx, `default_owner = $1`, ownerID)
}

func (r *portfolioRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Portfolio, error) {
	query := (*repository)(r).rebind(`SELECT ` + portfolioColumns + ` FROM portfolios WHERE owner_id = $1 ORDER BY created_at, id`)
	rows, err := r.tx.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying portfolios: %w", err)
	}
	defer closeRows(rows)

	portfolios := make([]domain.Portfolio, 0)
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	return portfolios, rows.Err()
}

// Positions

type positionRepository repository

const assetSelect = `
	SELECT a.id, a.portfolio_id, a.share_id, s.symbol, a.unit, a.active, a.created_at, a.updated_at
	FROM assets a
	JOIN shares s ON s.id = a.share_id
	JOIN portfolios p ON p.id = a.portfolio_id
`

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var a domain.Asset
	var active int64
	if err := row.Scan(&a.ID, &a.PortfolioID, &a.ShareID, &a.Symbol, &a.Unit, &active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Active = active == 1
	return &a, nil
}

func (r *positionRepository) queryAssets(ctx context.Context, query string, args ...any) ([]domain.Asset, error) {
	rows, err := r.tx.QueryContext(ctx, (*repository)(r).rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying assets: %w", err)
	}
	defer closeRows(rows)

	assets := make([]domain.Asset, 0)
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func (r *positionRepository) CreateLot(ctx context.Context, portfolioID string, share domain.Share, unit domain.Decimal) (*domain.Asset, error) {
	asset, err := domain.NewAsset(portfolioID, share, unit)
	if err != nil {
		return nil, err
	}

	query := (*repository)(r).rebind(`
		INSERT INTO assets (id, portfolio_id, share_id, unit, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err = r.tx.ExecContext(ctx, query,
		asset.ID, asset.PortfolioID, asset.ShareID, asset.Unit, boolToInt(asset.Active), asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create lot", "portfolio_id", portfolioID, "share_id", share.ID, "error", err)
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return &asset, nil
}

func (r *positionRepository) FindOpenLotsForShare(ctx context.Context, filter domain.LotFilter) ([]domain.Asset, error) {
	query := assetSelect + ` WHERE a.active = 1 AND s.symbol = $1 AND p.owner_id = $2`
	args := []any{domain.NormalizeSymbol(filter.Symbol), filter.OwnerID}
	if filter.PortfolioID != "" {
		query += ` AND a.portfolio_id = $3`
		args = append(args, filter.PortfolioID)
	}
	query += ` ORDER BY a.unit DESC, a.created_at ASC, a.id ASC ` + (*repository)(r).lockAssets()

	lots, err := r.queryAssets(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// text collation of ids may differ between databases
	domain.SortLotsForAllocation(lots)
	return lots, nil
}

func (r *positionRepository) lockLot(ctx context.Context, where string, args ...any) (*domain.Asset, error) {
	query := (*repository)(r).rebind(assetSelect + ` WHERE ` + where + ` ` + (*repository)(r).lockAssets())
	a, err := scanAsset(r.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset: %w", err)
	}
	return a, nil
}

func (r *positionRepository) ReduceLot(ctx context.Context, assetID string, unit domain.Decimal) (*domain.Asset, error) {
	asset, err := r.lockLot(ctx, `a.id = $1`, assetID)
	if err != nil {
		return nil, err
	}
	if err := asset.Reduce(unit); err != nil {
		return nil, err
	}

	query := (*repository)(r).rebind(`UPDATE assets SET unit = $1, active = $2, updated_at = $3 WHERE id = $4`)
	if _, err := r.tx.ExecContext(ctx, query, asset.Unit, boolToInt(asset.Active), asset.UpdatedAt, asset.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to reduce lot", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("update asset: %w", err)
	}
	return asset, nil
}

func (r *positionRepository) FindLotByID(ctx context.Context, assetID, ownerID string) (*domain.Asset, error) {
	return r.lockLot(ctx, `a.id = $1 AND p.owner_id = $2`, assetID, ownerID)
}

func (r *positionRepository) ListOpenLots(ctx context.Context, portfolioID string) ([]domain.Asset, error) {
	return r.queryAssets(ctx, assetSelect+` WHERE a.active = 1 AND a.portfolio_id = $1 ORDER BY a.created_at, a.id`, portfolioID)
}

// Trades

type tradeRepository repository

func (r *tradeRepository) RecordFill(ctx context.Context, assetID string, unit domain.Decimal, isBuy bool, sharePrice domain.Decimal) (*domain.Trade, error) {
	trade, err := domain.NewTrade(assetID, unit, isBuy, sharePrice)
	if err != nil {
		return nil, err
	}

	query := (*repository)(r).rebind(`
		INSERT INTO trades (id, asset_id, unit, is_buy, share_price, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err = r.tx.ExecContext(ctx, query,
		trade.ID, trade.AssetID, trade.Unit, boolToInt(trade.IsBuy), trade.SharePrice, trade.Amount, trade.CreatedAt,
	)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record trade", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("insert trade: %w", err)
	}
	return &trade, nil
}

func (r *tradeRepository) ListByAsset(ctx context.Context, assetID string) ([]domain.Trade, error) {
	query := (*repository)(r).rebind(`
		SELECT id, asset_id, unit, is_buy, share_price, amount, created_at
		FROM trades WHERE asset_id = $1 ORDER BY seq
	`)
	rows, err := r.tx.QueryContext(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer closeRows(rows)

	trades := make([]domain.Trade, 0)
	for rows.Next() {
		var t domain.Trade
		var isBuy int64
		var createdAt time.Time
		if err := rows.Scan(&t.ID, &t.AssetID, &t.Unit, &isBuy, &t.SharePrice, &t.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.IsBuy = isBuy == 1
		t.CreatedAt = createdAt.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
