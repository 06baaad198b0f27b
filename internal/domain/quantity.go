package domain

import "github.com/cockroachdb/apd/v3"

// Bounds on the units and prices the ledger accepts. A bounded unit times a
// bounded price fits in 34 significant digits, and sums over any realistic
// number of lots stay inside DefaultContext, so ledger arithmetic is exact.
const (
	MaxUnitIntegerDigits  = 12
	MaxUnitScale          = 8
	MaxPriceIntegerDigits = 10
	MaxPriceScale         = 4
)

// ValidUnit reports whether unit is a strictly positive quantity within
// MaxUnitIntegerDigits and MaxUnitScale. Trailing zeros do not count.
func ValidUnit(unit Decimal) bool {
	return unit.IsPositive() && withinDigits(unit, MaxUnitIntegerDigits, MaxUnitScale)
}

// ValidPrice reports whether price is non-negative and within
// MaxPriceIntegerDigits and MaxPriceScale.
func ValidPrice(price Decimal) bool {
	if price.Sign() < 0 {
		return false
	}
	return withinDigits(price, MaxPriceIntegerDigits, MaxPriceScale)
}

func withinDigits(d Decimal, integerDigits, scale int64) bool {
	if d.Form != apd.Finite {
		return false
	}
	var reduced apd.Decimal
	reduced.Reduce(&d.Decimal)
	if reduced.IsZero() {
		return true
	}
	exp := int64(reduced.Exponent)
	if -exp > scale {
		return false
	}
	return reduced.NumDigits()+exp <= integerDigits
}
