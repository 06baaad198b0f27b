package domain

import (
	"time"

	"github.com/google/uuid"
)

// Asset is a lot: a quantity of one share held in one portfolio.
// It is opened by a buy, reduced by sells and never deleted; a fully
// sold lot stays around with Active set to false.
type Asset struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	ShareID     string    `json:"share_id"`
	Symbol      string    `json:"symbol,omitempty"`
	Unit        Decimal   `json:"unit"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewAsset opens a lot. unit must be strictly positive.
func NewAsset(portfolioID string, share Share, unit Decimal) (Asset, error) {
	if !unit.IsPositive() {
		return Asset{}, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	return Asset{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		ShareID:     share.ID,
		Symbol:      share.Symbol,
		Unit:        unit,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Reduce removes unit from the lot and recomputes Active.
// The lot is left untouched when the request is rejected.
func (a *Asset) Reduce(unit Decimal) error {
	if !unit.IsPositive() {
		return ErrInvalidQuantity
	}
	if unit.Cmp(a.Unit) > 0 {
		slack, err := unit.Sub(a.Unit)
		if err != nil {
			return err
		}
		return NewInsufficientError(KindInsufficientLotQuantity, slack)
	}
	remaining, err := a.Unit.Sub(unit)
	if err != nil {
		return err
	}
	a.Unit = remaining
	a.Active = remaining.IsPositive()
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// IsConsistent checks unit >= 0 and active <=> unit > 0.
func (a Asset) IsConsistent() bool {
	if a.Unit.Decimal.Negative && !a.Unit.IsZero() {
		return false
	}
	return a.Active == a.Unit.IsPositive()
}
