package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func item(price int64, qty int) LineItem {
	return LineItem{UnitPrice: decimal.NewFromInt(price), Quantity: qty}
}

func TestSubtotal(t *testing.T) {
	items := []LineItem{item(100, 2), item(250, 3)}
	assert.True(t, Subtotal(items).Equal(decimal.NewFromInt(950)))
}

func TestSubtotalEmpty(t *testing.T) {
	assert.True(t, Subtotal(nil).Equal(decimal.Zero))
}

func TestTotalWithDiscount(t *testing.T) {
	items := []LineItem{item(100, 2)}
	total := Total(items, decimal.NewFromInt(20))
	assert.True(t, total.Equal(decimal.NewFromInt(180)))
}

func TestTotalClampedAtZero(t *testing.T) {
	items := []LineItem{item(50, 1)}
	total := Total(items, decimal.NewFromInt(100))
	assert.True(t, total.Equal(decimal.Zero))
}

func TestTotalFractionalPrices(t *testing.T) {
	items := []LineItem{
		{UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
	}
	total := Total(items, decimal.RequireFromString("0.97"))
	assert.True(t, total.Equal(decimal.RequireFromString("59.00")))
}

func TestTotalDeterministic(t *testing.T) {
	items := []LineItem{item(100, 2), item(75, 4)}
	discount := decimal.NewFromInt(30)

	first := Total(items, discount)
	for i := 0; i < 10; i++ {
		assert.True(t, first.Equal(Total(items, discount)))
	}
}
