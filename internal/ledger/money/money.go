// Package money provides exact decimal amounts tagged with a currency code.
//
// Arithmetic never rounds; rounding is applied explicitly at presentation
// boundaries so aggregation across thousands of journal lines does not
// compound rounding error.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount couples a decimal magnitude with an ISO 4217 currency code.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// CurrencyMismatchError reports arithmetic between two different currencies.
// Callers are responsible for aligning currencies before invoking arithmetic;
// this error signals a programming fault, not a recoverable condition.
type CurrencyMismatchError struct {
	Op    string
	Left  string
	Right string
}

func (e CurrencyMismatchError) Error() string {
	return fmt.Sprintf("money: %s requires matching currencies, got %s and %s", e.Op, e.Left, e.Right)
}

// New constructs an Amount. The currency code is normalised to upper case.
func New(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: normalise(currency)}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Amount {
	return Amount{Value: decimal.Zero, Currency: normalise(currency)}
}

// FromString parses a decimal literal into an Amount.
func FromString(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return New(d, currency), nil
}

// Add returns a+b or a CurrencyMismatchError.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, CurrencyMismatchError{Op: "add", Left: a.Currency, Right: b.Currency}
	}
	return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency}, nil
}

// Sub returns a-b or a CurrencyMismatchError.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, CurrencyMismatchError{Op: "subtract", Left: a.Currency, Right: b.Currency}
	}
	return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency}, nil
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Value: a.Value.Neg(), Currency: a.Currency}
}

// Abs returns the absolute amount.
func (a Amount) Abs() Amount {
	return Amount{Value: a.Value.Abs(), Currency: a.Currency}
}

// Mul scales the amount by a dimensionless factor, e.g. an FX rate or an
// ownership fraction. The currency is preserved by the caller's convention.
func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(factor), Currency: a.Currency}
}

// IsZero reports whether the magnitude is exactly zero.
func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

// IsNegative reports whether the magnitude is below zero.
func (a Amount) IsNegative() bool {
	return a.Value.IsNegative()
}

// Cmp compares two amounts: -1 if a<b, 0 if equal, +1 if a>b.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, CurrencyMismatchError{Op: "compare", Left: a.Currency, Right: b.Currency}
	}
	return a.Value.Cmp(b.Value), nil
}

// Equal reports whether the two amounts share currency and magnitude.
func (a Amount) Equal(b Amount) bool {
	return a.Currency == b.Currency && a.Value.Equal(b.Value)
}

// Round2 rounds to two decimal places. Presentation boundary only.
func (a Amount) Round2() Amount {
	return Amount{Value: a.Value.Round(2), Currency: a.Currency}
}

// String renders the amount as "<value> <currency>".
func (a Amount) String() string {
	return a.Value.String() + " " + a.Currency
}

func normalise(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
