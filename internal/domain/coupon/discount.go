package coupon

import (
	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
)

var oneHundred = decimal.NewFromInt(100)

// Discount computes the rupee amount a coupon takes off the given cart view.
// Eligible metas scope buy-x-get-y to products in the coupon's applicability;
// pass nil for unscoped coupons. The result is rounded to 2 decimal places
// and never exceeds the cart subtotal except for fixed_amount, which the
// totals clamp absorbs.
func Discount(c *Coupon, view *CartView, eligible []catalog.ProductMeta) decimal.Decimal {
	switch c.Type {
	case TypePercentage:
		d := view.Subtotal.Mul(c.Value).Div(oneHundred)
		if c.MaxDiscountAmount.IsPositive() && d.GreaterThan(c.MaxDiscountAmount) {
			d = c.MaxDiscountAmount
		}
		return d.Round(2)

	case TypeFixedAmount:
		return c.Value.Round(2)

	case TypeFreeShipping:
		return view.ShippingAmount.Round(2)

	case TypeBuyXGetY:
		d := cheapestEligibleUnit(c, view, eligible)
		if c.MaxDiscountAmount.IsPositive() && d.GreaterThan(c.MaxDiscountAmount) {
			d = c.MaxDiscountAmount
		}
		return d.Round(2)
	}

	return decimal.Zero
}

// cheapestEligibleUnit finds the lowest unit price among cart lines whose
// product is in the coupon's scope. Returns zero when nothing qualifies.
func cheapestEligibleUnit(c *Coupon, view *CartView, eligible []catalog.ProductMeta) decimal.Decimal {
	inScope := func(productID int64) bool { return true }
	if c.scoped() {
		ids := make(map[int64]struct{}, len(eligible))
		for _, m := range eligible {
			if c.eligible(m) {
				ids[m.ID] = struct{}{}
			}
		}
		inScope = func(productID int64) bool {
			_, ok := ids[productID]
			return ok
		}
	}

	var cheapest decimal.Decimal
	found := false
	for _, l := range view.Lines {
		if l.Quantity < 1 || !inScope(l.ProductID) {
			continue
		}
		if !found || l.UnitPrice.LessThan(cheapest) {
			cheapest = l.UnitPrice
			found = true
		}
	}
	if !found {
		return decimal.Zero
	}
	return cheapest
}
