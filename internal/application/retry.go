package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmanzanog/share-ledger/internal/domain"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a ledger operation is re-run after losing a
// serialization race.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

func (s *LedgerService) runInTx(ctx context.Context, op string, fn func(ctx context.Context, tx domain.Tx) error) error {
	return runInTx(ctx, s.store, s.retry, op, fn)
}

// runInTx runs fn in one store transaction, re-running the whole unit of
// work on ErrTxConflict. The result is either nil, a *domain.LedgerError,
// or a context error.
func runInTx(ctx context.Context, store domain.Store, policy RetryPolicy, op string, fn func(ctx context.Context, tx domain.Tx) error) error {
	attempt := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := store.WithinTx(ctx, fn)
		if errors.Is(err, domain.ErrTxConflict) {
			slog.DebugContext(ctx, "Ledger transaction conflict, retrying", "operation", op, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrTxConflict):
		slog.WarnContext(ctx, "Ledger transaction conflict retries exhausted", "operation", op, "attempts", attempt)
		return domain.NewConflictError(fmt.Errorf("%s: %w", op, err))
	}

	if _, ok := domain.KindOf(err); ok {
		return err
	}
	return domain.NewStorageError(fmt.Errorf("%s: %w", op, err))
}
