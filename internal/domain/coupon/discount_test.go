package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiscount(t *testing.T) {
	view := &CartView{
		Subtotal:       d("2000"),
		ShippingAmount: d("99"),
		Lines: []CartLine{
			{ProductID: 101, UnitPrice: d("1200"), Quantity: 1},
			{ProductID: 102, UnitPrice: d("800"), Quantity: 1},
		},
	}

	tests := []struct {
		name   string
		coupon *Coupon
		want   string
	}{
		{
			name:   "percentage",
			coupon: &Coupon{Type: TypePercentage, Value: d("10")},
			want:   "200.00",
		},
		{
			name:   "percentage capped",
			coupon: &Coupon{Type: TypePercentage, Value: d("25"), MaxDiscountAmount: d("300")},
			want:   "300.00",
		},
		{
			name:   "percentage rounds to paise",
			coupon: &Coupon{Type: TypePercentage, Value: d("7.5")},
			want:   "150.00",
		},
		{
			name:   "fixed amount ignores cap",
			coupon: &Coupon{Type: TypeFixedAmount, Value: d("500"), MaxDiscountAmount: d("100")},
			want:   "500.00",
		},
		{
			name:   "free shipping waives shipping",
			coupon: &Coupon{Type: TypeFreeShipping, Value: d("0")},
			want:   "99.00",
		},
		{
			name:   "buy x get y frees cheapest unit",
			coupon: &Coupon{Type: TypeBuyXGetY, Value: d("1")},
			want:   "800.00",
		},
		{
			name:   "buy x get y capped",
			coupon: &Coupon{Type: TypeBuyXGetY, Value: d("1"), MaxDiscountAmount: d("250")},
			want:   "250.00",
		},
		{
			name:   "unknown type is zero",
			coupon: &Coupon{Type: Type("mystery"), Value: d("10")},
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(tt.coupon, view, nil)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestDiscountBuyXGetYScoped(t *testing.T) {
	view := &CartView{
		Subtotal: d("2000"),
		Lines: []CartLine{
			{ProductID: 101, UnitPrice: d("1200"), Quantity: 1},
			{ProductID: 102, UnitPrice: d("800"), Quantity: 1},
		},
	}
	c := &Coupon{
		Type:             TypeBuyXGetY,
		Value:            d("1"),
		ApplicableBrands: []string{"dell"},
	}
	metas := []catalog.ProductMeta{
		{ID: 101, Brand: "dell"},
		{ID: 102, Brand: "lenovo"},
	}

	// Only the dell line is eligible, so the 1200 unit goes free even though
	// the lenovo one is cheaper.
	got := Discount(c, view, metas)
	assert.True(t, got.Equal(d("1200")), "got %s", got)
}

func TestDiscountBuyXGetYNoEligibleLines(t *testing.T) {
	view := &CartView{
		Subtotal: d("800"),
		Lines:    []CartLine{{ProductID: 102, UnitPrice: d("800"), Quantity: 1}},
	}
	c := &Coupon{
		Type:             TypeBuyXGetY,
		Value:            d("1"),
		ApplicableBrands: []string{"dell"},
	}
	metas := []catalog.ProductMeta{{ID: 102, Brand: "lenovo"}}

	assert.True(t, Discount(c, view, metas).IsZero())
}
