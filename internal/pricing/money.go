// Package pricing computes unit prices and minimum quantities for textile
// print orders. Every function here is pure.
package pricing

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is an amount in whole Egyptian pounds.
type Money int64

var (
	half    = decimal.New(5, -1)
	hundred = decimal.NewFromInt(100)
)

// Decimal returns the amount as a decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(m))
}

func (m Money) String() string {
	return strconv.FormatInt(int64(m), 10) + " EGP"
}

// RoundMoney rounds to the nearest whole pound, halves going up.
func RoundMoney(d decimal.Decimal) Money {
	return Money(d.Add(half).Floor().IntPart())
}

// LineTotal multiplies a unit price by a quantity and rounds once.
func LineTotal(unit Money, quantity decimal.Decimal) Money {
	return RoundMoney(unit.Decimal().Mul(quantity))
}

// Percent returns round(amount * pct / 100).
func Percent(amount Money, pct decimal.Decimal) Money {
	return RoundMoney(amount.Decimal().Mul(pct).Div(hundred))
}
