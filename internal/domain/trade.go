package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Trade is an immutable fill against one lot. Amount is always
// Unit x SharePrice as observed when the fill was recorded.
type Trade struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"asset_id"`
	Unit       Decimal   `json:"unit"`
	IsBuy      bool      `json:"is_buy"`
	SharePrice Decimal   `json:"share_price"`
	Amount     Decimal   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTrade(assetID string, unit Decimal, isBuy bool, sharePrice Decimal) (Trade, error) {
	if !unit.IsPositive() {
		return Trade{}, ErrInvalidQuantity
	}
	amount, err := unit.Mul(sharePrice)
	if err != nil {
		return Trade{}, fmt.Errorf("computing trade amount: %w", err)
	}
	return Trade{
		ID:         uuid.New().String(),
		AssetID:    assetID,
		Unit:       unit,
		IsBuy:      isBuy,
		SharePrice: sharePrice,
		Amount:     amount,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// SignedUnit is +Unit for buys and -Unit for sells.
func (t Trade) SignedUnit() Decimal {
	if t.IsBuy {
		return t.Unit
	}
	res := Decimal{}
	res.Neg(&t.Unit.Decimal)
	return res
}

// NetUnits replays a trade history into the unit it implies for its lot.
func NetUnits(trades []Trade) (Decimal, error) {
	total := Zero
	for _, t := range trades {
		next, err := total.Add(t.SignedUnit())
		if err != nil {
			return Zero, err
		}
		total = next
	}
	return total, nil
}
