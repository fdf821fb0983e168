// Package checkout turns an active cart into a paid order: final coupon
// revalidation, stock gating, address capture, payment, and confirmation.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PaymentMethod selects how an order is paid.
type PaymentMethod string

const (
	// MethodCOD is cash on delivery: the order confirms and settles
	// immediately, no gateway round-trip.
	MethodCOD PaymentMethod = "cod"
	// MethodRazorpay is the hosted gateway flow: an intent is created and
	// the order confirms on a signed callback.
	MethodRazorpay PaymentMethod = "razorpay"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
	// ErrShippingAddressRequired rejects checkout without a deliverable
	// address.
	ErrShippingAddressRequired = errors.New("shipping address is required")
	// ErrInvalidSignature rejects a payment callback whose HMAC does not
	// match. The order stays pending.
	ErrInvalidSignature = errors.New("payment signature verification failed")
	ErrNotOrderOwner    = errors.New("order belongs to a different customer")
	ErrAddressNotFound  = errors.New("address not found")
	// ErrPaymentNotFound rejects a confirmation for an order that never had
	// a gateway intent created.
	ErrPaymentNotFound = errors.New("no payment attempt recorded for order")
)

// InsufficientStockError names the product that blocked checkout so the
// client can prompt the shopper to adjust quantity.
type InsufficientStockError struct {
	ProductID int64
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d", e.Title, e.Requested, e.Available)
}

// UnsupportedPaymentMethodError rejects unknown payment methods by name.
type UnsupportedPaymentMethodError struct {
	Method PaymentMethod
}

func (e *UnsupportedPaymentMethodError) Error() string {
	return fmt.Sprintf("unsupported payment method %q", e.Method)
}

// Address is a delivery or billing address captured at checkout.
type Address struct {
	ID         int64
	UserID     *int64
	Type       string
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// IsZero reports whether no address was supplied.
func (a Address) IsZero() bool {
	return a.FullName == "" && a.Line1 == "" && a.PostalCode == ""
}

// AddressRepository persists checkout addresses.
type AddressRepository interface {
	Save(ctx context.Context, a *Address) (int64, error)
	GetByID(ctx context.Context, id int64) (*Address, error)
}

// PaymentRecord is one row in the payments table tracking a gateway intent.
type PaymentRecord struct {
	ID       int64
	OrderID  int64
	Provider string
	Amount   decimal.Decimal
	Currency string
	Status   string
	TxnID    string
}

// PaymentRepository persists payment attempts.
type PaymentRepository interface {
	Create(ctx context.Context, p *PaymentRecord) (int64, error)
	GetByOrderID(ctx context.Context, orderID int64) (*PaymentRecord, error)
	MarkCaptured(ctx context.Context, orderID int64, txnID string) error
}

// orderNumber formats a human-quotable reference: date plus a short random
// suffix, e.g. LM-20260315-3F8A2C.
func orderNumber(t time.Time, suffix string) string {
	return fmt.Sprintf("LM-%s-%s", t.Format("20060102"), suffix)
}
