// Package money holds the fixed-precision arithmetic used for balances,
// rates and costs. Every stored or compared amount goes through Round.
package money

import (
	"errors"
	"strings"

	decimal "github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every amount.
const Scale int32 = 9

var (
	// ErrInvalidAmount is returned for text that is not a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNonPositiveAmount is returned when a strictly positive amount is required.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// Zero is the zero amount.
var Zero = decimal.Zero

// Round rounds half away from zero at Scale digits.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Add returns round(a+b).
func Add(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Add(b))
}

// Sub returns round(a-b).
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Sub(b))
}

// Mul returns round(a*b).
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Mul(b))
}

// DivRound divides d by divisor and rounds the quotient at Scale digits.
func DivRound(d decimal.Decimal, divisor int64) decimal.Decimal {
	return d.DivRound(decimal.NewFromInt(divisor), Scale)
}

// Parse reads a decimal amount. Surrounding whitespace is ignored.
func Parse(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	return Round(d), nil
}

// ParsePositive reads an amount that must be greater than zero after rounding.
func ParsePositive(text string) (decimal.Decimal, error) {
	d, err := Parse(text)
	if err != nil {
		return Zero, err
	}
	if !d.IsPositive() {
		return Zero, ErrNonPositiveAmount
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(text string) decimal.Decimal {
	d, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return Round(d).StringFixed(Scale)
}
