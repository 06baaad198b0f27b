package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is a wrapper around apd.Decimal to provide easy database serialization
// and clean arithmetic methods for the domain layer. Units, prices and trade
// amounts all use it so that trade amounts reconcile exactly.
type Decimal struct {
	apd.Decimal
}

// DefaultContext is used for arithmetic operations. It traps Inexact, so a
// result that would need more than 34 significant digits is an error rather
// than a rounded value.
var DefaultContext = func() *apd.Context {
	c := apd.BaseContext.WithPrecision(34)
	c.Traps |= apd.Inexact
	return c
}()

// Zero constant for convenience
var Zero = NewDecimalFromInt(0)

// NewDecimalFromInt creates a Decimal from an int64
func NewDecimalFromInt(v int64) Decimal {
	d := Decimal{}
	d.SetInt64(v)
	return d
}

// NewDecimalFromString creates a Decimal from a string
func NewDecimalFromString(v string) (Decimal, error) {
	d := Decimal{}
	_, _, err := d.SetString(v)
	if err != nil {
		return d, fmt.Errorf("invalid decimal string %s: %w", v, err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("invalid decimal string %s: not a finite number", v)
	}
	return d, nil
}

// MustDecimal parses v and panics on failure. Intended for constants and fixtures.
func MustDecimal(v string) Decimal {
	d, err := NewDecimalFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

// String implements the fmt.Stringer interface.
func (d Decimal) String() string {
	return d.Decimal.Text('f')
}

// Value implements the driver.Valuer interface for database serialization.
func (d Decimal) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (d *Decimal) Scan(value interface{}) error {
	if value == nil {
		d.SetInt64(0)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		_, _, err := d.SetString(string(v))
		return err
	case string:
		_, _, err := d.SetString(v)
		return err
	case int64:
		d.SetInt64(v)
		return nil
	case float64:
		// Oracle NUMBER columns may come back as float64; go through the
		// shortest decimal representation to avoid binary noise.
		_, _, err := d.SetString(fmt.Sprintf("%v", v))
		return err
	default:
		return fmt.Errorf("unsupported type for Decimal scan: %T", value)
	}
}

// Arithmetic Helpers

func (d Decimal) Add(other Decimal) (Decimal, error) {
	res := Decimal{}
	if _, err := DefaultContext.Add(&res.Decimal, &d.Decimal, &other.Decimal); err != nil {
		return res, fmt.Errorf("add operation failed: %w", err)
	}
	return res, nil
}

func (d Decimal) Sub(other Decimal) (Decimal, error) {
	res := Decimal{}
	if _, err := DefaultContext.Sub(&res.Decimal, &d.Decimal, &other.Decimal); err != nil {
		return res, fmt.Errorf("sub operation failed: %w", err)
	}
	return res, nil
}

func (d Decimal) Mul(other Decimal) (Decimal, error) {
	res := Decimal{}
	if _, err := DefaultContext.Mul(&res.Decimal, &d.Decimal, &other.Decimal); err != nil {
		return res, fmt.Errorf("mul operation failed: %w", err)
	}
	return res, nil
}

func (d Decimal) IsZero() bool {
	return d.Decimal.IsZero()
}

// IsPositive reports whether d is strictly greater than zero.
func (d Decimal) IsPositive() bool {
	return d.Decimal.Sign() > 0
}

func (d Decimal) Equal(other Decimal) bool {
	return d.Decimal.Cmp(&other.Decimal) == 0
}

func (d Decimal) Cmp(other Decimal) int {
	return d.Decimal.Cmp(&other.Decimal)
}

// Min returns the smaller of d and other.
func (d Decimal) Min(other Decimal) Decimal {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

// Sum adds all values, starting from zero.
func Sum(values ...Decimal) (Decimal, error) {
	total := Zero
	for _, v := range values {
		next, err := total.Add(v)
		if err != nil {
			return Zero, err
		}
		total = next
	}
	return total, nil
}

// MarshalJSON implements the json.Marshaler interface.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*d = Decimal{}
		return nil
	}
	// Remove quotes if present
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := NewDecimalFromString(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Round rounds the decimal to the specified number of places.
func (d Decimal) Round(places int32) (Decimal, error) {
	res := Decimal{}
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = apd.RoundHalfUp

	if _, err := ctx.Quantize(&res.Decimal, &d.Decimal, -places); err != nil {
		return res, fmt.Errorf("quantize operation failed: %w", err)
	}
	return res, nil
}
