// Package pricing computes order totals. It is deliberately free of
// side effects so a persisted order's total can be re-derived for audit.
package pricing

import "github.com/shopspring/decimal"

type LineItem struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns the sum of unit price times quantity over all items.
func Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Total returns the payable amount: subtotal minus discount, clamped at
// zero. Shipping fees are charged by the logistics provider and never
// enter this formula.
func Total(items []LineItem, discount decimal.Decimal) decimal.Decimal {
	total := Subtotal(items).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
