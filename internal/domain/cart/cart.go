// Package cart implements the shopping cart: one active cart per identity,
// price-snapshotted line items, and totals recomputed after every mutation.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/pricing"
)

// Status is the cart lifecycle state.
type Status string

const (
	// StatusActive carts accept mutations and are found by get-or-create.
	StatusActive Status = "active"
	// StatusConverted carts became orders and are immutable.
	StatusConverted Status = "converted"
	// StatusExpired carts aged past their TTL and were swept.
	StatusExpired Status = "expired"
	// StatusAbandoned carts were explicitly discarded.
	StatusAbandoned Status = "abandoned"
)

// Cart TTLs. Guest carts are short-lived; signed-in carts stick around.
const (
	UserTTL  = 30 * 24 * time.Hour
	GuestTTL = 7 * 24 * time.Hour
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("cart item not found")
	// ErrCartExists signals a lost get-or-create race: another request
	// created the identity's active cart first.
	ErrCartExists = errors.New("active cart already exists")
)

// Cart is the header row; Items are loaded separately.
type Cart struct {
	ID             int64
	Identity       identity.Identity
	Status         Status
	Currency       string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	ItemCount      int
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is one line with its price snapshot. Unit amounts are frozen at
// add-time; catalog price changes do not ripple into existing carts.
type Item struct {
	ID                  int64
	CartID              int64
	ProductID           int64
	VariantID           *int64
	Quantity            int
	UnitPrice           decimal.Decimal
	UnitMRP             decimal.Decimal
	UnitDiscountPercent int
	UnitGSTPercent      int
	LineTotal           decimal.Decimal
	LineDiscount        decimal.Decimal
	LineTax             decimal.Decimal
	SelectedAttributes  map[string]string
}

// AppliedDiscount is one attached coupon's contribution, as the totals
// computation needs it.
type AppliedDiscount struct {
	ID             int64
	CouponID       int64
	Code           string
	Type           string
	DiscountAmount decimal.Decimal
	FreeShipping   bool
}

// Detail is the full cart payload returned to clients.
type Detail struct {
	Cart    *Cart
	Items   []Item
	Coupons []AppliedDiscount
}

// Repository persists carts and their items. Uniqueness races (one active
// cart per identity, one line per product+variant) are resolved by database
// constraints, not application checks.
type Repository interface {
	FindActive(ctx context.Context, id identity.Identity) (*Cart, error)
	GetByID(ctx context.Context, cartID int64) (*Cart, error)
	Create(ctx context.Context, id identity.Identity, expiresAt time.Time) (*Cart, error)
	SetStatus(ctx context.Context, cartID int64, status Status) error
	ExtendExpiry(ctx context.Context, cartID int64, expiresAt time.Time) error

	// ExpireStale flips active carts past their TTL to expired and returns
	// how many were swept.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	ListItems(ctx context.Context, cartID int64) ([]Item, error)
	GetItem(ctx context.Context, itemID, cartID int64) (*Item, error)

	// MergeItem inserts the line or, when the product+variant already sits in
	// the cart, adds the quantity onto the existing row. It returns the row
	// as stored, with the merged quantity.
	MergeItem(ctx context.Context, item *Item) (*Item, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, qty int, line pricing.Line) error
	DeleteItem(ctx context.Context, itemID, cartID int64) error
	DeleteAllItems(ctx context.Context, cartID int64) error

	ListAppliedDiscounts(ctx context.Context, cartID int64) ([]AppliedDiscount, error)
	UpdateTotals(ctx context.Context, cartID int64, t pricing.Totals) error
}
