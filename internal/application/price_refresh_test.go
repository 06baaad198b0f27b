package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockQuoteProvider struct {
	mu           sync.Mutex
	requested    []string
	GetQuoteFunc func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error)
}

func (m *MockQuoteProvider) GetQuote(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
	m.mu.Lock()
	m.requested = append(m.requested, symbol)
	m.mu.Unlock()
	return m.GetQuoteFunc(ctx, symbol)
}

func TestCatalogPriceRefresher_RefreshPrices(t *testing.T) {
	f := newFixture(t)
	before := f.buy(t, "APL", "3")

	quotes := &MockQuoteProvider{
		GetQuoteFunc: func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
			switch symbol {
			case "APL":
				return &marketdata.QuoteResult{Symbol: symbol, Price: domain.MustDecimal("101.25"), Time: time.Now()}, nil
			default:
				return nil, errors.New("rate limited")
			}
		},
	}

	refresher := NewCatalogPriceRefresher(f.store, quotes, fastPolicy(1))
	err := refresher.RefreshPrices(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MST")
	assert.ElementsMatch(t, []string{"APL", "MST"}, quotes.requested)

	shares, err := f.service.ListShares(context.Background())
	require.NoError(t, err)
	prices := map[string]string{}
	for _, s := range shares {
		prices[s.Symbol] = s.Price.String()
	}
	assert.Equal(t, "101.25", prices["APL"])
	assert.Equal(t, "80.77", prices["MST"])

	// the earlier buy keeps its own price
	trades, err := f.service.ListAssetTrades(context.Background(), owner, before.ID)
	require.NoError(t, err)
	assert.Equal(t, "90.88", trades[0].SharePrice.String())

	fill, err := f.service.Buy(context.Background(), BuyRequest{OwnerID: owner, Symbol: "APL", Unit: domain.MustDecimal("1")})
	require.NoError(t, err)
	assert.Equal(t, "101.25", fill.Trade.SharePrice.String())
}

func TestCatalogPriceRefresher_RejectsNonPositiveQuotes(t *testing.T) {
	f := newFixture(t)
	quotes := &MockQuoteProvider{
		GetQuoteFunc: func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
			return &marketdata.QuoteResult{Symbol: symbol, Price: domain.Zero}, nil
		},
	}

	err := NewCatalogPriceRefresher(f.store, quotes, fastPolicy(1)).RefreshPrices(context.Background())

	require.Error(t, err)
	shares, err := f.service.ListShares(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "90.88", shares[0].Price.String())
}

func TestCatalogPriceRefresher_RejectsOutOfRangeQuotes(t *testing.T) {
	for _, price := range []string{"100000000000", "90.123456789"} {
		t.Run(price, func(t *testing.T) {
			f := newFixture(t)
			quotes := &MockQuoteProvider{
				GetQuoteFunc: func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
					return &marketdata.QuoteResult{Symbol: symbol, Price: domain.MustDecimal(price)}, nil
				},
			}

			err := NewCatalogPriceRefresher(f.store, quotes, fastPolicy(1)).RefreshPrices(context.Background())

			require.Error(t, err)
			shares, err := f.service.ListShares(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "90.88", shares[0].Price.String())
		})
	}
}

func TestCatalogPriceRefresher_EmptyCatalog(t *testing.T) {
	quotes := &MockQuoteProvider{
		GetQuoteFunc: func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
			t.Fatal("no quote expected")
			return nil, nil
		},
	}

	err := NewCatalogPriceRefresher(memory.NewStore(), quotes, fastPolicy(1)).RefreshPrices(context.Background())

	assert.NoError(t, err)
}

func TestCatalogPriceRefresher_WithPriceUpdater(t *testing.T) {
	f := newFixture(t)
	calls := make(chan string, 16)
	quotes := &MockQuoteProvider{
		GetQuoteFunc: func(ctx context.Context, symbol string) (*marketdata.QuoteResult, error) {
			calls <- symbol
			return &marketdata.QuoteResult{Symbol: symbol, Price: domain.MustDecimal("1")}, nil
		},
	}

	updater := NewPriceUpdater(NewCatalogPriceRefresher(f.store, quotes, fastPolicy(1)), time.Hour)
	go updater.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("refresh did not run")
		}
	}
	updater.Stop()
	<-updater.Done()
}
