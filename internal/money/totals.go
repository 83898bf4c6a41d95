// Package money implements the invoice aggregation rules: line totals,
// discount clamping, tax and grand total.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

var hundred = decimal.NewFromInt(100)

// NormaliseDiscountType uppercases the value and defaults to FIXED_AMOUNT.
func NormaliseDiscountType(v string) DiscountType {
	switch DiscountType(strings.ToUpper(strings.TrimSpace(v))) {
	case DiscountPercentage:
		return DiscountPercentage
	default:
		return DiscountFixedAmount
	}
}

// Discount describes an invoice level discount.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Line is the quantity/price pair the engine needs from a line item.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Totals holds the aggregated, display-rounded invoice amounts.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxableAmount  decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// LineTotal returns quantity x unit price rounded to two places.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}

// Subtotal sums the rounded line totals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l.Quantity, l.UnitPrice))
	}
	return sum
}

// DiscountAmount resolves the discount against subtotal. The result is never
// negative and never exceeds subtotal.
func DiscountAmount(subtotal decimal.Decimal, d Discount) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
	default:
		amount = d.Value
	}
	return clamp(amount, decimal.Zero, decimal.Max(subtotal, decimal.Zero))
}

// Compute aggregates lines, discount and tax rate (a percentage) into Totals.
// Intermediate values keep full precision; every output is rounded once.
func Compute(lines []Line, discount Discount, taxRate decimal.Decimal) Totals {
	subtotal := Subtotal(lines)
	discountAmount := DiscountAmount(subtotal, discount)
	taxable := decimal.Max(subtotal.Sub(discountAmount), decimal.Zero)
	if taxRate.IsNegative() {
		taxRate = decimal.Zero
	}
	tax := taxable.Mul(taxRate).Div(hundred)
	total := taxable.Add(tax)

	return Totals{
		Subtotal:       subtotal.Round(2),
		DiscountAmount: discountAmount.Round(2),
		TaxableAmount:  taxable.Round(2),
		TaxAmount:      tax.Round(2),
		Total:          total.Round(2),
	}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
