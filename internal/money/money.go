package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimalPlaces is the highest precision a currency may declare.
const MaxDecimalPlaces = 4

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// MinExchangeRate is the floor applied to currency exchange rates.
var MinExchangeRate = decimal.New(1, -4)

// ParseAmount parses a plain decimal string with at most places fractional digits.
func ParseAmount(input string, places int) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	unsigned := strings.TrimLeft(trimmed, "+-")
	if len(trimmed)-len(unsigned) > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.SplitN(unsigned, ".", 2)
	if parts[0] != "" && !isDigits(parts[0]) {
		return decimal.Zero, ErrInvalidAmount
	}
	if len(parts) == 2 {
		if parts[1] == "" || !isDigits(parts[1]) {
			return decimal.Zero, ErrInvalidAmount
		}
		if len(parts[1]) > places {
			return decimal.Zero, ErrTooManyDecimals
		}
	}
	if parts[0] == "" && len(parts) == 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// ParsePositive parses an amount and rejects zero and negative values.
func ParsePositive(input string, places int) (decimal.Decimal, error) {
	value, err := ParseAmount(input, places)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

func Format(value decimal.Decimal, places int) string {
	return value.StringFixed(int32(ClampPlaces(places)))
}

func ClampPlaces(places int) int {
	if places < 0 {
		return 0
	}
	if places > MaxDecimalPlaces {
		return MaxDecimalPlaces
	}
	return places
}

func ClampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(MinExchangeRate) {
		return MinExchangeRate
	}
	return rate
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
