package persistence

import (
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

// Decimals are stored as text so that no database rounds them; ordering by
// quantity therefore happens in Go.

type shareRecord struct {
	ID        string         `gorm:"primaryKey;size:36"`
	Symbol    string         `gorm:"uniqueIndex;size:32;not null"`
	Name      string         `gorm:"size:255;not null"`
	Price     domain.Decimal `gorm:"type:text;not null"`
	Active    bool           `gorm:"not null;index"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false"`
}

func (shareRecord) TableName() string { return "shares" }

func (r shareRecord) toDomain() domain.Share {
	return domain.Share{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Name:      r.Name,
		Price:     r.Price,
		Active:    r.Active,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// portfolioRecord.DefaultOwner is set only on the default portfolio, so the
// unique index allows one default per owner.
type portfolioRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	OwnerID      string    `gorm:"size:255;not null;index"`
	Name         string    `gorm:"size:255;not null"`
	IsDefault    bool      `gorm:"not null"`
	DefaultOwner *string   `gorm:"size:255;uniqueIndex"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
}

func (portfolioRecord) TableName() string { return "portfolios" }

func newPortfolioRecord(p domain.Portfolio) portfolioRecord {
	rec := portfolioRecord{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		Name:      p.Name,
		IsDefault: p.Default,
		CreatedAt: p.CreatedAt,
	}
	if p.Default {
		owner := p.OwnerID
		rec.DefaultOwner = &owner
	}
	return rec
}

func (r portfolioRecord) toDomain() domain.Portfolio {
	return domain.Portfolio{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Default:   r.IsDefault,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type assetRecord struct {
	ID          string         `gorm:"primaryKey;size:36"`
	PortfolioID string         `gorm:"size:36;not null;index"`
	ShareID     string         `gorm:"size:36;not null;index"`
	Unit        domain.Decimal `gorm:"type:text;not null"`
	Active      bool           `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime:false"`
}

func (assetRecord) TableName() string { return "assets" }

func newAssetRecord(a domain.Asset) assetRecord {
	return assetRecord{
		ID:          a.ID,
		PortfolioID: a.PortfolioID,
		ShareID:     a.ShareID,
		Unit:        a.Unit,
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// assetRow is an asset joined with its share symbol.
type assetRow struct {
	assetRecord
	Symbol string
}

func (r assetRow) toDomain() domain.Asset {
	return domain.Asset{
		ID:          r.ID,
		PortfolioID: r.PortfolioID,
		ShareID:     r.ShareID,
		Symbol:      r.Symbol,
		Unit:        r.Unit,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// tradeRecord.Seq keeps recording order independent of clock resolution.
type tradeRecord struct {
	Seq        uint64         `gorm:"primaryKey;autoIncrement"`
	ID         string         `gorm:"uniqueIndex;size:36;not null"`
	AssetID    string         `gorm:"size:36;not null;index"`
	Unit       domain.Decimal `gorm:"type:text;not null"`
	IsBuy      bool           `gorm:"not null"`
	SharePrice domain.Decimal `gorm:"type:text;not null"`
	Amount     domain.Decimal `gorm:"type:text;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime:false"`
}

func (tradeRecord) TableName() string { return "trades" }

func (r tradeRecord) toDomain() domain.Trade {
	return domain.Trade{
		ID:         r.ID,
		AssetID:    r.AssetID,
		Unit:       r.Unit,
		IsBuy:      r.IsBuy,
		SharePrice: r.SharePrice,
		Amount:     r.Amount,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}
