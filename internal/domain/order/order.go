// Package order defines the immutable order snapshot created at checkout and
// its status lifecycle.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

// Status is the fulfilment state. Transitions only move forward except for
// cancellation, which is allowed from pending and confirmed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks money separately from fulfilment: an order is created
// unpaid and settles to paid when its payment method completes.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvalidTransition rejects a status move the lifecycle does not
	// allow, e.g. cancelling a shipped order.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// CanTransition reports whether the fulfilment status may move from to next.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusShipped || to == StatusCancelled
	case StatusShipped:
		return to == StatusDelivered
	default:
		return false
	}
}

// Order is the priced snapshot of a cart at checkout time. Amounts are
// copied, not referenced, so later cart or catalog changes cannot alter what
// the customer agreed to pay.
type Order struct {
	ID                int64
	OrderNumber       string
	Identity          identity.Identity
	CartID            int64
	Status            Status
	PaymentStatus     PaymentStatus
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	DiscountAmount    decimal.Decimal
	ShippingAmount    decimal.Decimal
	TotalAmount       decimal.Decimal
	Currency          string
	ShippingMethod    string
	BillingAddressID  int64
	ShippingAddressID int64
	Items             []Item
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item is one snapshotted order line.
type Item struct {
	ID             int64
	OrderID        int64
	ProductID      int64
	VariantID      *int64
	Title          string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
	UnitMRP        decimal.Decimal
	UnitGSTPercent int
	LineTotal      decimal.Decimal
	LineDiscount   decimal.Decimal
	LineTax        decimal.Decimal
}

// Repository persists orders. Create stores the header and items atomically.
type Repository interface {
	Create(ctx context.Context, o *Order) (int64, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListForIdentity(ctx context.Context, id identity.Identity) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status, payment PaymentStatus) error
}
