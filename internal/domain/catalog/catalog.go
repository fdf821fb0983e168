// Package catalog exposes the product data the cart and checkout flows read:
// price snapshots, applicability metadata, and stock levels.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
)

// Product is the sellable base unit. MRP may be zero when the listing has no
// strike-through price.
type Product struct {
	ID              int64
	CategoryID      int64
	Title           string
	Brand           string
	SKU             string
	Price           decimal.Decimal
	MRP             decimal.Decimal
	GSTPercent      int
	DiscountPercent int
	InStock         bool
	StockQty        int
}

// Variant is a configuration of a product (RAM, storage, grade) with its own
// price and stock.
type Variant struct {
	ID              int64
	ProductID       int64
	SKU             string
	Price           decimal.Decimal
	MRP             decimal.Decimal
	GSTPercent      int
	DiscountPercent int
	InStock         bool
	StockQty        int
}

// ProductMeta is the slim projection used for coupon applicability scoping.
type ProductMeta struct {
	ID         int64
	CategoryID int64
	Brand      string
}

// Repository provides catalog reads plus the stock decrement used at order
// confirmation.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetVariant(ctx context.Context, id int64) (*Variant, error)
	GetProductsMeta(ctx context.Context, ids []int64) ([]ProductMeta, error)

	// DecrementStock atomically takes qty units off the product's stock and
	// reports whether enough stock was available. It never drives stock
	// negative.
	DecrementStock(ctx context.Context, productID int64, qty int) (bool, error)
}
