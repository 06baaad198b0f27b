package marketdata

import (
	"context"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

type QuoteResult struct {
	Symbol string
	Price  domain.Decimal
	Time   time.Time
}

// QuoteProvider returns the latest price of a catalog symbol.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*QuoteResult, error)
}
