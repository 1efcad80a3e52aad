package ledger

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MinorScale is the number of decimal places kept for monetary amounts.
const MinorScale = 2

// ErrInvalidCurrency indicates a code that is not ISO 4217.
var ErrInvalidCurrency = errors.New("ledger: invalid currency code")

// FromMinor converts integer minor units into a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorScale)
}

// ToMinor converts a major-unit decimal to minor units, rounding half away
// from zero.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(MinorScale).Round(0).IntPart()
}

// RoundAmount rounds to MinorScale places.
func RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MinorScale)
}

// NormalizeCurrency validates an ISO 4217 code and returns its canonical form.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
