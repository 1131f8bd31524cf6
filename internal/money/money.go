// Package money provides the fixed-point monetary value used by the cash ledger.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in integer minor currency units.
type Amount int64

// Zero is the empty amount.
const Zero Amount = 0

var (
	// ErrFractionalMinorUnits indicates a decimal that cannot be expressed in whole minor units.
	ErrFractionalMinorUnits = errors.New("money: amount has more fraction digits than the currency scale")
	// ErrOverflow indicates the value does not fit the int64 minor unit range.
	ErrOverflow = errors.New("money: amount out of range")
)

// New builds an Amount from minor units.
func New(minor int64) Amount {
	return Amount(minor)
}

// Minor returns the raw minor unit count.
func (a Amount) Minor() int64 {
	return int64(a)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return a - b
}

func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsPositive() bool { return a > 0 }
func (a Amount) IsNegative() bool { return a < 0 }

// String renders the minor unit count.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}

// Decimal converts the amount to major units with the given number of minor digits.
func (a Amount) Decimal(scale int32) decimal.Decimal {
	return decimal.New(int64(a), -scale)
}

// FromDecimal converts a major unit decimal into minor units. Conversion never rounds.
func FromDecimal(d decimal.Decimal, scale int32) (Amount, error) {
	shifted := d.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrFractionalMinorUnits, d.String())
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || shifted.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return Amount(shifted.IntPart()), nil
}

// Parse reads a major unit string such as "1500000.50".
func Parse(s string, scale int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d, scale)
}
