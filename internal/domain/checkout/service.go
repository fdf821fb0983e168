package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/order"
	"github.com/lapmart/lapmart-backend/internal/notify"
	"github.com/lapmart/lapmart-backend/internal/payment"
)

// Carts is the slice of the cart service checkout drives.
type Carts interface {
	Get(ctx context.Context, id identity.Identity) (*cart.Detail, error)
}

// CartState mutates cart lifecycle state directly, bypassing the service's
// active-cart resolution: at confirm time the cart is leaving circulation.
type CartState interface {
	SetStatus(ctx context.Context, cartID int64, status cart.Status) error
	DeleteAllItems(ctx context.Context, cartID int64) error
}

// Coupons is the slice of the coupon service checkout drives.
type Coupons interface {
	Revalidate(ctx context.Context, cartID int64, id identity.Identity) ([]coupon.Applied, error)
	ConsumeForOrder(ctx context.Context, req coupon.ConsumeRequest) error
}

// Service orchestrates the checkout flow.
type Service struct {
	carts     Carts
	cartState CartState
	coupons   Coupons
	orders    order.Repository
	addresses AddressRepository
	payments  PaymentRepository
	products  catalog.Repository
	gateway   payment.Gateway
	notifier  notify.Notifier
	lg        *zap.Logger
	now       func() time.Time
	suffix    func() string
}

func NewService(
	carts Carts,
	cartState CartState,
	coupons Coupons,
	orders order.Repository,
	addresses AddressRepository,
	payments PaymentRepository,
	products catalog.Repository,
	gateway payment.Gateway,
	notifier notify.Notifier,
	lg *zap.Logger,
) *Service {
	return &Service{
		carts:     carts,
		cartState: cartState,
		coupons:   coupons,
		orders:    orders,
		addresses: addresses,
		payments:  payments,
		products:  products,
		gateway:   gateway,
		notifier:  notifier,
		lg:        lg,
		now:       time.Now,
		suffix:    randomSuffix,
	}
}

func randomSuffix() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return strings.ToUpper(hex.EncodeToString(b[:]))
}

// InitParams carries what checkout needs beyond the cart itself. A saved
// address may be reused by id instead of resubmitting the fields.
type InitParams struct {
	ShippingAddressID int64
	ShippingAddress   Address
	// BillingAddress defaults to the shipping address when zero.
	BillingAddressID int64
	BillingAddress   Address
	ShippingMethod   string
}

// Init reprices the cart one last time, gates on stock, captures addresses,
// and snapshots everything into a pending order. Nothing is decremented or
// consumed yet; that happens at confirmation.
func (s *Service) Init(ctx context.Context, id identity.Identity, p InitParams) (*order.Order, error) {
	det, err := s.carts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(det.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if p.ShippingAddressID == 0 && p.ShippingAddress.IsZero() {
		return nil, ErrShippingAddressRequired
	}

	// Drop coupons invalidated since they were applied and refresh stale
	// discount amounts before the totals are frozen.
	if _, err := s.coupons.Revalidate(ctx, det.Cart.ID, id); err != nil {
		return nil, err
	}
	det, err = s.carts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.gateStock(ctx, det.Items); err != nil {
		return nil, err
	}

	shipID, billID, err := s.saveAddresses(ctx, id, p)
	if err != nil {
		return nil, err
	}

	o := s.snapshotOrder(det, id, p.ShippingMethod, shipID, billID)
	items, err := s.snapshotItems(ctx, det.Items)
	if err != nil {
		return nil, err
	}
	o.Items = items

	oid, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	o.ID = oid

	s.lg.Info("checkout initialized",
		zap.String("order_number", o.OrderNumber),
		zap.Int64("cart_id", det.Cart.ID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return o, nil
}

func (s *Service) gateStock(ctx context.Context, items []cart.Item) error {
	for _, it := range items {
		if it.VariantID != nil {
			v, err := s.products.GetVariant(ctx, *it.VariantID)
			if err != nil {
				return err
			}
			if !v.InStock || v.StockQty < it.Quantity {
				return &InsufficientStockError{ProductID: it.ProductID, Title: v.SKU, Requested: it.Quantity, Available: v.StockQty}
			}
			continue
		}
		prod, err := s.products.GetProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if !prod.InStock || prod.StockQty < it.Quantity {
			return &InsufficientStockError{ProductID: it.ProductID, Title: prod.Title, Requested: it.Quantity, Available: prod.StockQty}
		}
	}
	return nil
}

func (s *Service) saveAddresses(ctx context.Context, id identity.Identity, p InitParams) (shipID, billID int64, err error) {
	shipID, err = s.resolveAddress(ctx, id, p.ShippingAddressID, p.ShippingAddress, "shipping")
	if err != nil {
		return 0, 0, errors.Wrap(err, "shipping address")
	}

	switch {
	case p.BillingAddressID != 0:
		billID, err = s.resolveAddress(ctx, id, p.BillingAddressID, Address{}, "billing")
	case p.BillingAddress.IsZero() && p.ShippingAddressID != 0:
		billID = shipID
	case p.BillingAddress.IsZero():
		billID, err = s.resolveAddress(ctx, id, 0, p.ShippingAddress, "billing")
	default:
		billID, err = s.resolveAddress(ctx, id, 0, p.BillingAddress, "billing")
	}
	if err != nil {
		return 0, 0, errors.Wrap(err, "billing address")
	}
	return shipID, billID, nil
}

// resolveAddress reuses a saved address by id, checking it belongs to the
// caller, or persists the supplied one.
func (s *Service) resolveAddress(ctx context.Context, id identity.Identity, addrID int64, a Address, typ string) (int64, error) {
	if addrID != 0 {
		saved, err := s.addresses.GetByID(ctx, addrID)
		if err != nil {
			return 0, err
		}
		uid, ok := id.UserID()
		if saved.UserID == nil || !ok || *saved.UserID != uid {
			return 0, ErrAddressNotFound
		}
		return saved.ID, nil
	}

	a.Type = typ
	if uid, ok := id.UserID(); ok {
		a.UserID = &uid
	}
	return s.addresses.Save(ctx, &a)
}

func (s *Service) snapshotOrder(det *cart.Detail, id identity.Identity, method string, shipID, billID int64) *order.Order {
	c := det.Cart
	return &order.Order{
		OrderNumber:       orderNumber(s.now(), s.suffix()),
		Identity:          id,
		CartID:            c.ID,
		Status:            order.StatusPending,
		PaymentStatus:     order.PaymentUnpaid,
		Subtotal:          c.Subtotal,
		TaxAmount:         c.TaxAmount,
		DiscountAmount:    c.DiscountAmount,
		ShippingAmount:    c.ShippingAmount,
		TotalAmount:       c.TotalAmount,
		Currency:          c.Currency,
		ShippingMethod:    method,
		ShippingAddressID: shipID,
		BillingAddressID:  billID,
	}
}

func (s *Service) snapshotItems(ctx context.Context, items []cart.Item) ([]order.Item, error) {
	out := make([]order.Item, len(items))
	for i, it := range items {
		prod, err := s.products.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		out[i] = order.Item{
			ProductID:      it.ProductID,
			VariantID:      it.VariantID,
			Title:          prod.Title,
			SKU:            prod.SKU,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			UnitMRP:        it.UnitMRP,
			UnitGSTPercent: it.UnitGSTPercent,
			LineTotal:      it.LineTotal,
			LineDiscount:   it.LineDiscount,
			LineTax:        it.LineTax,
		}
	}
	return out, nil
}

// PayResult is what Pay returns: the updated order, plus a gateway intent
// when the method needs client-side completion.
type PayResult struct {
	Order  *order.Order
	Intent *payment.Intent
}

// Pay starts payment for a pending order. Cash on delivery runs the full
// confirmation tail immediately and the order ends confirmed and paid; the
// gateway method creates an intent and waits for Confirm.
func (s *Service) Pay(ctx context.Context, id identity.Identity, orderID int64, method PaymentMethod) (*PayResult, error) {
	o, err := s.ownedOrder(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, order.ErrInvalidTransition
	}

	switch method {
	case MethodCOD:
		if err := s.finalize(ctx, o, order.PaymentPaid); err != nil {
			return nil, err
		}
		return &PayResult{Order: o}, nil

	case MethodRazorpay:
		intent, err := s.gateway.CreateIntent(ctx, o.OrderNumber, o.TotalAmount, o.Currency)
		if err != nil {
			return nil, errors.Wrap(err, "create payment intent")
		}
		rec := &PaymentRecord{
			OrderID:  o.ID,
			Provider: string(MethodRazorpay),
			Amount:   o.TotalAmount,
			Currency: o.Currency,
			Status:   "created",
			TxnID:    intent.ProviderOrderID,
		}
		if _, err := s.payments.Create(ctx, rec); err != nil {
			return nil, errors.Wrap(err, "record payment intent")
		}
		if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, order.PaymentPending); err != nil {
			return nil, errors.Wrap(err, "mark payment pending")
		}
		o.PaymentStatus = order.PaymentPending
		return &PayResult{Order: o, Intent: intent}, nil

	default:
		return nil, &UnsupportedPaymentMethodError{Method: method}
	}
}

// ConfirmParams carries the gateway callback payload.
type ConfirmParams struct {
	OrderID    int64
	OrderRef   string
	PaymentRef string
	Signature  string
}

// Confirm completes a gateway payment: checks the callback against the
// intent recorded at Pay time, verifies its signature, then runs the same
// finalization as cash on delivery. A bad reference or signature leaves the
// order untouched.
func (s *Service) Confirm(ctx context.Context, id identity.Identity, p ConfirmParams) (*order.Order, error) {
	o, err := s.ownedOrder(ctx, id, p.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, order.ErrInvalidTransition
	}

	// The callback must reference the intent created for THIS order; a
	// validly signed pair lifted from another order must not confirm it.
	rec, err := s.payments.GetByOrderID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if rec.TxnID != p.OrderRef {
		s.lg.Warn("payment callback references a different intent",
			zap.Int64("order_id", o.ID),
			zap.String("order_ref", p.OrderRef),
		)
		return nil, ErrInvalidSignature
	}

	if !s.gateway.VerifySignature(p.OrderRef, p.PaymentRef, p.Signature) {
		s.lg.Warn("payment signature mismatch",
			zap.Int64("order_id", o.ID),
			zap.String("order_ref", p.OrderRef),
		)
		return nil, ErrInvalidSignature
	}

	if err := s.payments.MarkCaptured(ctx, o.ID, p.PaymentRef); err != nil {
		return nil, errors.Wrap(err, "mark payment captured")
	}
	if err := s.finalize(ctx, o, order.PaymentPaid); err != nil {
		return nil, err
	}
	return o, nil
}

// finalize is the shared confirmation tail: decrement stock, flip statuses,
// consume coupons, retire the cart, notify. A product whose stock ran out
// between the gate and here is logged and skipped rather than failing a paid
// order.
func (s *Service) finalize(ctx context.Context, o *order.Order, pay order.PaymentStatus) error {
	for _, it := range o.Items {
		ok, err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock for product %d", it.ProductID)
		}
		if !ok {
			s.lg.Warn("stock ran out before confirmation",
				zap.Int64("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.String("order_number", o.OrderNumber),
			)
		}
	}

	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusConfirmed, pay); err != nil {
		return errors.Wrap(err, "confirm order")
	}
	o.Status = order.StatusConfirmed
	o.PaymentStatus = pay

	if err := s.coupons.ConsumeForOrder(ctx, coupon.ConsumeRequest{
		OrderID:     o.ID,
		CartID:      o.CartID,
		Identity:    o.Identity,
		OrderAmount: o.TotalAmount,
	}); err != nil {
		return errors.Wrap(err, "consume coupons")
	}

	if err := s.cartState.DeleteAllItems(ctx, o.CartID); err != nil {
		return errors.Wrap(err, "clear cart items")
	}
	if err := s.cartState.SetStatus(ctx, o.CartID, cart.StatusConverted); err != nil {
		return errors.Wrap(err, "retire cart")
	}

	if err := s.notifier.OrderConfirmed(ctx, o.OrderNumber); err != nil {
		s.lg.Warn("order confirmation notification failed",
			zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return nil
}

// Cancel stops a pending or confirmed order. Stock is not restocked and
// consumed coupon usage is not released; both require a manual adjustment.
func (s *Service) Cancel(ctx context.Context, id identity.Identity, orderID int64) (*order.Order, error) {
	o, err := s.ownedOrder(ctx, id, orderID)
	if err != nil {
		return nil, err
	}
	if !order.CanTransition(o.Status, order.StatusCancelled) {
		return nil, order.ErrInvalidTransition
	}

	pay := o.PaymentStatus
	if pay == order.PaymentPaid {
		pay = order.PaymentRefunded
	}
	if err := s.orders.UpdateStatus(ctx, o.ID, order.StatusCancelled, pay); err != nil {
		return nil, errors.Wrap(err, "cancel order")
	}
	o.Status = order.StatusCancelled
	o.PaymentStatus = pay

	if err := s.notifier.OrderCancelled(ctx, o.OrderNumber); err != nil {
		s.lg.Warn("order cancellation notification failed",
			zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return o, nil
}

// GetOrder returns one of the identity's orders.
func (s *Service) GetOrder(ctx context.Context, id identity.Identity, orderID int64) (*order.Order, error) {
	return s.ownedOrder(ctx, id, orderID)
}

// ListOrders returns the identity's order history, newest first.
func (s *Service) ListOrders(ctx context.Context, id identity.Identity) ([]order.Order, error) {
	return s.orders.ListForIdentity(ctx, id)
}

func (s *Service) ownedOrder(ctx context.Context, id identity.Identity, orderID int64) (*order.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Identity != id {
		return nil, ErrNotOrderOwner
	}
	return o, nil
}
