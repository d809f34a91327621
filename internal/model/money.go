package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount has more than two decimal places")
	ErrAmountTooLarge    = errors.New("amount exceeds the maximum of 999999.99")
)

// MaxAmountMinor is the largest amount in cents a goal target or a single charge may carry.
// Card gateways cap a charge at eight digits.
const MaxAmountMinor int64 = 99_999_999

var (
	hundred   = decimal.NewFromInt(100)
	maxAmount = decimal.NewFromInt(MaxAmountMinor)
)

// ToMinorUnits converts a major-unit decimal ("400.50") into cents.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, ErrAmountNotPositive
	}

	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrAmountPrecision
	}
	if cents.GreaterThan(maxAmount) {
		return 0, ErrAmountTooLarge
	}

	return cents.IntPart(), nil
}

// FromMinorUnits converts cents back into a major-unit decimal.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

func CurrencySymbol(currency string) string {
	symbol := currencySymbols[currency]
	if symbol == "" {
		symbol = "$"
	}
	return symbol
}
