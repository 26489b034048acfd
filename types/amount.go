// Package types provides common value types used across coinledger.
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when an amount is malformed or negative.
	ErrInvalidAmount = errors.New("coinledger: invalid amount")

	// ErrInsufficientBalance is returned when a debit exceeds the bucket it draws from.
	ErrInsufficientBalance = errors.New("coinledger: insufficient balance")
)

// Amount is a non-negative arbitrary-precision decimal.
// All arithmetic is exact. Amounts never pass through binary floating point,
// including on the wire where they are encoded as decimal strings.
//
// The zero value is a valid zero amount.
//
//nolint:recvcheck // Value receivers for arithmetic, pointer receiver for UnmarshalText.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// ParseAmount parses a decimal string such as "100.00".
// Empty, malformed, and negative input is rejected with ErrInvalidAmount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	return Amount{d: d}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmount creates an amount of value * 10^exp, e.g. NewAmount(4000, -2) is 40.00.
func NewAmount(value int64, exp int32) (Amount, error) {
	if value < 0 {
		return Zero, fmt.Errorf("%w: %d is negative", ErrInvalidAmount, value)
	}
	return Amount{d: decimal.New(value, exp)}, nil
}

// Arithmetic operations

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a - b, or ErrInsufficientBalance if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.d.LessThan(b.d) {
		return a, fmt.Errorf("%w: %s < %s", ErrInsufficientBalance, a, b)
	}
	return Amount{d: a.d.Sub(b.d)}, nil
}

// Comparison methods

// IsZero returns true if the amount is exactly zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b have the same numeric value ("1.50" equals "1.5").
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// LessThan returns true if a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// Display

// String returns the exact decimal representation, keeping the scale the
// amount carries: "100.00" stays "100.00", and a sum keeps the larger scale
// of its operands. The result always round-trips through ParseAmount.
func (a Amount) String() string {
	if exp := a.d.Exponent(); exp < 0 {
		return a.d.StringFixed(-exp)
	}
	return a.d.String()
}

// StringFixed formats the amount with exactly places fractional digits, rounding
// half away from zero when the amount carries more precision than requested.
func (a Amount) StringFixed(places int32) string { return a.d.StringFixed(places) }

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Serialization

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
