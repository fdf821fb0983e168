package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiscountPercent(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		mrp    string
		stored int
		want   int
	}{
		{"derived from mrp spread", "800", "1000", 5, 20},
		{"stored when mrp equals price", "1000", "1000", 5, 5},
		{"stored when mrp missing", "1000", "0", 5, 5},
		{"stored when mrp below price", "1000", "900", 5, 5},
		{"rounds to nearest percent", "749", "999", 0, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiscountPercent(d(tt.price), d(tt.mrp), tt.stored)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceLine(t *testing.T) {
	line := PriceLine(LineItem{
		UnitPrice:       d("24999"),
		UnitMRP:         d("32999"),
		DiscountPercent: 24,
		GSTPercent:      18,
		Quantity:        2,
	})
	assert.True(t, line.Total.Equal(d("49998")), "total = %s", line.Total)
	assert.True(t, line.Discount.Equal(d("11999.52")), "discount = %s", line.Discount)
	// GST applies after the listing discount: (49998 - 11999.52) * 18%.
	assert.True(t, line.Tax.Equal(d("6839.73")), "tax = %s", line.Tax)
}

func TestComputeTotals(t *testing.T) {
	items := []LineItem{
		{UnitPrice: d("1000"), GSTPercent: 18, Quantity: 2},
	}

	t.Run("no coupons", func(t *testing.T) {
		got := ComputeTotals(items, d("0"), nil)
		assert.True(t, got.Subtotal.Equal(d("2000")))
		assert.True(t, got.TaxAmount.Equal(d("360")))
		assert.True(t, got.TotalAmount.Equal(d("2360")))
		assert.Equal(t, 2, got.ItemCount)
	})

	t.Run("coupon discount subtracts from total", func(t *testing.T) {
		got := ComputeTotals(items, d("0"), []AppliedCoupon{{DiscountAmount: d("200")}})
		assert.True(t, got.DiscountAmount.Equal(d("200")))
		assert.True(t, got.TotalAmount.Equal(d("2160")), "total = %s", got.TotalAmount)
	})

	t.Run("free shipping zeroes shipping not total", func(t *testing.T) {
		got := ComputeTotals(items, d("99"), []AppliedCoupon{{FreeShipping: true}})
		assert.True(t, got.ShippingAmount.IsZero())
		assert.True(t, got.TotalAmount.Equal(d("2360")))
	})

	t.Run("oversized discount clamps at zero", func(t *testing.T) {
		got := ComputeTotals(items, d("0"), []AppliedCoupon{{DiscountAmount: d("5000")}})
		assert.True(t, got.TotalAmount.IsZero(), "total = %s", got.TotalAmount)
	})

	t.Run("listing discount joins the discount total", func(t *testing.T) {
		discounted := []LineItem{
			{UnitPrice: d("1000"), UnitMRP: d("1250"), DiscountPercent: 20, GSTPercent: 18, Quantity: 1},
		}
		got := ComputeTotals(discounted, d("0"), nil)
		assert.True(t, got.DiscountAmount.Equal(d("200")))
		// 1000 + (1000-200)*18% - 200
		assert.True(t, got.TotalAmount.Equal(d("944")), "total = %s", got.TotalAmount)
	})

	t.Run("empty cart", func(t *testing.T) {
		got := ComputeTotals(nil, d("0"), nil)
		assert.True(t, got.TotalAmount.IsZero())
		assert.Equal(t, 0, got.ItemCount)
	})
}
