package application

import (
	"fmt"

	"github.com/jmanzanog/share-ledger/internal/domain"
)

// Allocation is the part of a sell order assigned to one lot.
type Allocation struct {
	Lot  domain.Asset
	Unit domain.Decimal
}

// PlanAllocation spreads requested over lots in the order given, filling
// each lot up to min(remaining, lot.Unit) and stopping as soon as the
// request is covered. Lots are expected in SortLotsForAllocation order.
//
// When the lots cannot cover the request it returns insufficient_assets
// with slack = requested - available and no plan.
func PlanAllocation(lots []domain.Asset, requested domain.Decimal) ([]Allocation, error) {
	if !requested.IsPositive() {
		return nil, domain.ErrInvalidQuantity
	}

	available, err := domain.TotalUnits(lots)
	if err != nil {
		return nil, fmt.Errorf("summing lots: %w", err)
	}
	if requested.Cmp(available) > 0 {
		slack, err := requested.Sub(available)
		if err != nil {
			return nil, fmt.Errorf("computing slack: %w", err)
		}
		return nil, domain.NewInsufficientError(domain.KindInsufficientAssets, slack)
	}

	plan := make([]Allocation, 0, len(lots))
	supplied := domain.Zero
	for _, lot := range lots {
		remaining, err := requested.Sub(supplied)
		if err != nil {
			return nil, fmt.Errorf("computing remainder: %w", err)
		}
		if !remaining.IsPositive() {
			break
		}

		unit := remaining.Min(lot.Unit)
		if !unit.IsPositive() {
			continue
		}
		plan = append(plan, Allocation{Lot: lot, Unit: unit})

		if supplied, err = supplied.Add(unit); err != nil {
			return nil, fmt.Errorf("accumulating supplied units: %w", err)
		}
	}

	return plan, nil
}
