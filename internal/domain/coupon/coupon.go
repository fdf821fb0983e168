// Package coupon implements coupon validation, discount computation, and the
// usage ledger. A coupon is *attached* to a cart while shopping (reversible,
// does not count against quota) and *consumed* exactly once when an order
// confirms (permanent ledger write).
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage discounts the cart subtotal by Value percent, capped at
	// MaxDiscountAmount when set.
	TypePercentage Type = "percentage"
	// TypeFixedAmount subtracts Value outright. It may exceed the subtotal;
	// the pricing clamp handles that edge.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping waives the cart's current shipping amount.
	TypeFreeShipping Type = "free_shipping"
	// TypeBuyXGetY makes the cheapest eligible unit free.
	TypeBuyXGetY Type = "buy_x_get_y"
)

// Coupon is the admin-owned definition. UsageCount is a denormalized counter
// that must stay derivable from the ledger; it moves only inside the
// order-confirmation transaction.
type Coupon struct {
	ID                int64
	Code              string
	Name              string
	Description       string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    decimal.Decimal // zero = no minimum
	MaxDiscountAmount decimal.Decimal // zero = no cap
	ValidFrom         time.Time
	ValidUntil        time.Time
	UsageLimit        int // 0 = unlimited
	UsageCount        int
	UsageLimitPerUser int
	Stackable         bool
	IsActive          bool

	ApplicableTo         string // "all" or "restricted"
	ApplicableCategories []int64
	ApplicableProducts   []int64
	ApplicableBrands     []string
	ExcludedCategories   []int64
	ExcludedProducts     []int64
	ExcludedBrands       []string

	CreatedBy int64
}

// Applied is one attached-but-not-consumed link between a cart and a coupon.
type Applied struct {
	ID             int64
	CartID         int64
	CouponID       int64
	Code           string
	Type           Type
	Value          decimal.Decimal
	DiscountAmount decimal.Decimal
}

// UsageRecord is one immutable ledger entry, written only inside the
// order-confirmation transaction.
type UsageRecord struct {
	CouponID       int64
	Identity       identity.Identity
	OrderID        int64
	CartID         int64
	DiscountAmount decimal.Decimal
	OrderAmount    decimal.Decimal
	UsedAt         time.Time
}

// CartLine is the slim projection of a cart line used for applicability
// scoping and buy-x-get-y pricing.
type CartLine struct {
	ProductID int64
	UnitPrice decimal.Decimal
	Quantity  int
}

// CartView is the slice of cart state validation needs: totals for the
// minimum-order gate, lines for applicability scoping.
type CartView struct {
	ID             int64
	Subtotal       decimal.Decimal
	ShippingAmount decimal.Decimal
	Lines          []CartLine
}

// ProductIDs returns the distinct product ids across the cart lines.
func (v *CartView) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(v.Lines))
	ids := make([]int64, 0, len(v.Lines))
	for _, l := range v.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

var (
	// ErrCouponNotFound is returned by Repository lookups for unknown codes.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCartNotFound is returned by CartSource for unknown or inactive carts.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCouponInUse is returned by Repository.Delete when ledger entries
	// reference the coupon.
	ErrCouponInUse = errors.New("coupon has usage history")
)

// Repository provides coupon definition persistence.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) (int64, error)
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error

	// ReconcileUsageCounts recomputes every usage_count from the ledger and
	// returns the number of coupons whose counter drifted.
	ReconcileUsageCounts(ctx context.Context) (int, error)
}

// AppliedRepository manages the cart_coupons links.
type AppliedRepository interface {
	ListByCart(ctx context.Context, cartID int64) ([]Applied, error)
	Upsert(ctx context.Context, a *Applied) error
	Delete(ctx context.Context, cartCouponID, cartID int64) error
	DeleteAllForCart(ctx context.Context, cartID int64) error
}

// Ledger is the append-only consumption log. RecordUsage must atomically
// insert the row, increment the coupon's usage_count, and delete the cart
// link in one transaction.
type Ledger interface {
	CountForIdentity(ctx context.Context, couponID int64, id identity.Identity) (int, error)
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// CartSource resolves the cart view used during validation.
type CartSource interface {
	GetCartView(ctx context.Context, cartID int64) (*CartView, error)
}

// Recomputer re-derives and persists cart totals after coupon mutations.
type Recomputer interface {
	RecomputeTotals(ctx context.Context, cartID int64) error
}
