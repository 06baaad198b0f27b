package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/jmanzanog/share-ledger/internal/infrastructure/marketdata"
)

const defaultQuoteWorkers = 4

// CatalogPriceRefresher pulls quotes for every active share and writes the new
// prices back to the catalog. Trades keep the price stamped when they were
// recorded, so a refresh never touches the trade log.
type CatalogPriceRefresher struct {
	store   domain.Store
	quotes  marketdata.QuoteProvider
	retry   RetryPolicy
	workers int
}

func NewCatalogPriceRefresher(store domain.Store, quotes marketdata.QuoteProvider, policy RetryPolicy) *CatalogPriceRefresher {
	return &CatalogPriceRefresher{
		store:   store,
		quotes:  quotes,
		retry:   policy,
		workers: defaultQuoteWorkers,
	}
}

// RefreshPrices updates all active shares. Shares whose quote could not be
// fetched keep their previous price; their errors are joined into the result.
func (r *CatalogPriceRefresher) RefreshPrices(ctx context.Context) error {
	var shares []domain.Share
	err := runInTx(ctx, r.store, r.retry, "list_shares", func(ctx context.Context, tx domain.Tx) error {
		var err error
		shares, err = tx.Shares().ListActive(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("listing active shares: %w", err)
	}

	if len(shares) == 0 {
		return nil
	}

	symbols := make([]string, len(shares))
	for i, share := range shares {
		symbols[i] = share.Symbol
	}

	quotes, quoteErrors := r.getQuotesConcurrent(ctx, symbols)

	errs := make([]error, 0, len(quoteErrors))
	for symbol, err := range quoteErrors {
		slog.WarnContext(ctx, "Failed to fetch quote", "symbol", symbol, "error", err)
		errs = append(errs, fmt.Errorf("quote %s: %w", symbol, err))
	}

	if len(quotes) == 0 {
		return errors.Join(errs...)
	}

	updated := 0
	err = runInTx(ctx, r.store, r.retry, "refresh_prices", func(ctx context.Context, tx domain.Tx) error {
		updated = 0
		for symbol, quote := range quotes {
			share, err := tx.Shares().FindBySymbol(ctx, symbol)
			if err != nil {
				return err
			}
			if share.Price.Equal(quote.Price) {
				continue
			}
			share.Price = quote.Price
			share.UpdatedAt = time.Now().UTC()
			if err := tx.Shares().Upsert(ctx, share); err != nil {
				return fmt.Errorf("updating %s: %w", symbol, err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("saving prices: %w", err))
	} else {
		slog.InfoContext(ctx, "Catalog prices refreshed", "quoted", len(quotes), "updated", updated)
	}

	return errors.Join(errs...)
}

// getQuotesConcurrent fetches quotes with a bounded pool of goroutines.
func (r *CatalogPriceRefresher) getQuotesConcurrent(ctx context.Context, symbols []string) (map[string]*marketdata.QuoteResult, map[string]error) {
	quotes := make(map[string]*marketdata.QuoteResult)
	quoteErrors := make(map[string]error)

	type quoteResult struct {
		symbol string
		quote  *marketdata.QuoteResult
		err    error
	}

	workers := r.workers
	if workers <= 0 || workers > len(symbols) {
		workers = len(symbols)
	}

	jobs := make(chan string)
	resultChan := make(chan quoteResult, len(symbols))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				quote, err := r.quotes.GetQuote(ctx, symbol)
				if err == nil && !quote.Price.IsPositive() {
					err = fmt.Errorf("non-positive price %s", quote.Price)
				} else if err == nil && !domain.ValidPrice(quote.Price) {
					err = fmt.Errorf("price %s out of range", quote.Price)
				}
				resultChan <- quoteResult{symbol: symbol, quote: quote, err: err}
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for res := range resultChan {
		if res.err != nil {
			quoteErrors[res.symbol] = res.err
			continue
		}
		quotes[res.symbol] = res.quote
	}

	return quotes, quoteErrors
}
