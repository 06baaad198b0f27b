package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Share is a tradable instrument of the catalog. Symbol is unique and never
// changes; Price is updated externally and stamped onto every trade.
type Share struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     Decimal   `json:"price"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewShare(symbol, name string, price Decimal) Share {
	return Share{
		ID:        uuid.New().String(),
		Symbol:    NormalizeSymbol(symbol),
		Name:      name,
		Price:     price,
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
}

// NormalizeSymbol trims and upper-cases a symbol so lookups are case-insensitive.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValid checks identity and that Price is within ValidPrice bounds.
func (s Share) IsValid() bool {
	return s.ID != "" && s.Symbol != "" && ValidPrice(s.Price)
}

// IsTradable reports whether the share can be bought or sold.
func (s Share) IsTradable() bool {
	return s.Active && s.IsValid()
}
