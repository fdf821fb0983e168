// Package pricing holds the pure money math: per-line amounts and cart
// totals. Everything rounds to 2 decimal places (paise) and the grand total
// never goes below zero.
package pricing

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// LineItem is the priced snapshot of one cart line.
type LineItem struct {
	UnitPrice       decimal.Decimal
	UnitMRP         decimal.Decimal
	DiscountPercent int
	GSTPercent      int
	Quantity        int
}

// Line is the computed money breakdown for one LineItem.
type Line struct {
	Total    decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
}

// AppliedCoupon is the cart-level discount contribution of one attached
// coupon.
type AppliedCoupon struct {
	DiscountAmount decimal.Decimal
	FreeShipping   bool
}

// Totals is the cart summary persisted after every mutation.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	ItemCount      int
}

// DiscountPercent picks the effective listing discount for a snapshot: when
// the MRP exceeds the price, the percent is derived from the spread,
// otherwise the stored percent stands.
func DiscountPercent(unitPrice, unitMRP decimal.Decimal, storedPercent int) int {
	if unitMRP.GreaterThan(unitPrice) && unitMRP.IsPositive() {
		pct := unitMRP.Sub(unitPrice).Mul(oneHundred).Div(unitMRP)
		return int(pct.Round(0).IntPart())
	}
	return storedPercent
}

// PriceLine computes the money breakdown for one line: the listing discount
// comes off first, and GST applies to what remains.
func PriceLine(item LineItem) Line {
	qty := decimal.NewFromInt(int64(item.Quantity))
	total := item.UnitPrice.Mul(qty).Round(2)
	discount := total.Mul(decimal.NewFromInt(int64(item.DiscountPercent))).Div(oneHundred).Round(2)
	tax := total.Sub(discount).Mul(decimal.NewFromInt(int64(item.GSTPercent))).Div(oneHundred).Round(2)
	return Line{Total: total, Discount: discount, Tax: tax}
}

// ComputeTotals derives the cart summary from its lines, shipping, and
// attached coupons. The discount total carries both the per-line listing
// discounts and the coupon amounts; a free shipping coupon zeroes the
// shipping charge instead. The result clamps at zero so a generous
// fixed-amount coupon cannot drive the total negative.
func ComputeTotals(items []LineItem, shipping decimal.Decimal, coupons []AppliedCoupon) Totals {
	var t Totals
	t.Subtotal = decimal.Zero
	t.TaxAmount = decimal.Zero
	discount := decimal.Zero

	for _, it := range items {
		line := PriceLine(it)
		t.Subtotal = t.Subtotal.Add(line.Total)
		t.TaxAmount = t.TaxAmount.Add(line.Tax)
		discount = discount.Add(line.Discount)
		t.ItemCount += it.Quantity
	}

	t.ShippingAmount = shipping
	for _, c := range coupons {
		if c.FreeShipping {
			t.ShippingAmount = decimal.Zero
			continue
		}
		discount = discount.Add(c.DiscountAmount)
	}

	t.DiscountAmount = discount.Round(2)
	total := t.Subtotal.Add(t.TaxAmount).Add(t.ShippingAmount).Sub(t.DiscountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	t.Subtotal = t.Subtotal.Round(2)
	t.TaxAmount = t.TaxAmount.Round(2)
	t.ShippingAmount = t.ShippingAmount.Round(2)
	t.TotalAmount = total.Round(2)
	return t
}
