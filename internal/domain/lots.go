package domain

import "sort"

// SortLotsForAllocation orders lots largest unit first. Equal units keep
// creation order (oldest first) and then id order, so fills are reproducible.
func SortLotsForAllocation(lots []Asset) {
	sort.SliceStable(lots, func(i, j int) bool {
		if c := lots[i].Unit.Cmp(lots[j].Unit); c != 0 {
			return c > 0
		}
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].ID < lots[j].ID
	})
}

// TotalUnits sums the unit of every lot.
func TotalUnits(lots []Asset) (Decimal, error) {
	total := Zero
	for _, l := range lots {
		next, err := total.Add(l.Unit)
		if err != nil {
			return Zero, err
		}
		total = next
	}
	return total, nil
}
