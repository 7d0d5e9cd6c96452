package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of fractional digits kept on every monetary result.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustMoney parses a literal amount. It is meant for constants and tests.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
