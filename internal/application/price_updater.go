package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PriceRefresher updates catalog prices from an external source.
type PriceRefresher interface {
	RefreshPrices(ctx context.Context) error
}

// PriceUpdater calls a PriceRefresher on a fixed interval until stopped.
// Each refresh is bounded by the interval so a slow provider cannot pile up ticks.
type PriceUpdater struct {
	refresher PriceRefresher
	interval  time.Duration
	stopChan  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewPriceUpdater(refresher PriceRefresher, interval time.Duration) *PriceUpdater {
	return &PriceUpdater{
		refresher: refresher,
		interval:  interval,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled. The first refresh
// happens immediately so the catalog is current right after boot.
func (u *PriceUpdater) Start(ctx context.Context) {
	defer close(u.done)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Catalog price updater started", "interval", u.interval)
	u.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			u.refresh(ctx)
		case <-u.stopChan:
			slog.InfoContext(ctx, "Catalog price updater stopped")
			return
		case <-ctx.Done():
			slog.InfoContext(ctx, "Catalog price updater stopped due to context cancellation")
			return
		}
	}
}

func (u *PriceUpdater) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, u.interval)
	defer cancel()

	started := time.Now()
	if err := u.refresher.RefreshPrices(refreshCtx); err != nil {
		slog.ErrorContext(ctx, "Error refreshing catalog prices", "error", err)
		return
	}
	slog.DebugContext(ctx, "Catalog prices refreshed", "duration", time.Since(started))
}

// Stop ends the loop. It is safe to call more than once.
func (u *PriceUpdater) Stop() {
	u.stopOnce.Do(func() {
		close(u.stopChan)
	})
}

// Done is closed once Start has returned.
func (u *PriceUpdater) Done() <-chan struct{} {
	return u.done
}
