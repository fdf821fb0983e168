package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/pricing"
)

// Service implements the cart operations. It also satisfies the coupon
// package's CartSource and Recomputer, so coupon mutations reprice through
// the same code path as item mutations.
type Service struct {
	carts    Repository
	products catalog.Repository
	lg       *zap.Logger
	now      func() time.Time
}

func NewService(carts Repository, products catalog.Repository, lg *zap.Logger) *Service {
	return &Service{
		carts:    carts,
		products: products,
		lg:       lg,
		now:      time.Now,
	}
}

// GetOrCreate returns the identity's active cart, creating one when none
// exists. Losing the creation race to a concurrent request is resolved by
// re-reading, so both requests end up on the same cart.
func (s *Service) GetOrCreate(ctx context.Context, id identity.Identity) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, errors.Wrap(err, "find active cart")
	}

	c, err = s.carts.Create(ctx, id, s.now().Add(s.ttl(id)))
	if err == nil {
		s.lg.Info("cart created", zap.Int64("cart_id", c.ID), zap.Stringer("identity", id))
		return c, nil
	}
	if errors.Is(err, ErrCartExists) {
		return s.carts.FindActive(ctx, id)
	}
	return nil, errors.Wrap(err, "create cart")
}

func (s *Service) ttl(id identity.Identity) time.Duration {
	if id.IsUser() {
		return UserTTL
	}
	return GuestTTL
}

// AddItemParams identifies what to add and how many.
type AddItemParams struct {
	ProductID          int64
	VariantID          *int64
	Quantity           int
	SelectedAttributes map[string]string
}

// AddItem snapshots the current catalog price onto a new line, or merges the
// quantity into an existing line for the same product+variant. Quantities
// below one are rejected; use UpdateItemQuantity with zero to remove.
func (s *Service) AddItem(ctx context.Context, id identity.Identity, p AddItemParams) (*Detail, error) {
	if p.Quantity < 1 {
		return nil, errors.New("quantity must be at least 1")
	}

	c, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}

	item, err := s.snapshot(ctx, c.ID, p)
	if err != nil {
		return nil, err
	}

	merged, err := s.carts.MergeItem(ctx, item)
	if err != nil {
		return nil, errors.Wrap(err, "merge cart item")
	}

	// The merge may have changed the quantity; re-derive the line amounts
	// from the stored snapshot.
	line := pricing.PriceLine(pricing.LineItem{
		UnitPrice:       merged.UnitPrice,
		UnitMRP:         merged.UnitMRP,
		DiscountPercent: merged.UnitDiscountPercent,
		GSTPercent:      merged.UnitGSTPercent,
		Quantity:        merged.Quantity,
	})
	if err := s.carts.UpdateItemQuantity(ctx, merged.ID, merged.Quantity, line); err != nil {
		return nil, errors.Wrap(err, "reprice cart item")
	}

	if err := s.touch(ctx, c); err != nil {
		return nil, err
	}
	return s.detailAfterRecompute(ctx, c.ID)
}

// snapshot resolves the product or variant and freezes its pricing onto a
// cart line.
func (s *Service) snapshot(ctx context.Context, cartID int64, p AddItemParams) (*Item, error) {
	item := &Item{
		CartID:             cartID,
		ProductID:          p.ProductID,
		VariantID:          p.VariantID,
		Quantity:           p.Quantity,
		SelectedAttributes: p.SelectedAttributes,
	}

	if p.VariantID != nil {
		v, err := s.products.GetVariant(ctx, *p.VariantID)
		if err != nil {
			return nil, err
		}
		if v.ProductID != p.ProductID {
			return nil, catalog.ErrVariantNotFound
		}
		item.UnitPrice = v.Price
		item.UnitMRP = v.MRP
		item.UnitGSTPercent = v.GSTPercent
		item.UnitDiscountPercent = pricing.DiscountPercent(v.Price, v.MRP, v.DiscountPercent)
		return item, nil
	}

	prod, err := s.products.GetProduct(ctx, p.ProductID)
	if err != nil {
		return nil, err
	}
	item.UnitPrice = prod.Price
	item.UnitMRP = prod.MRP
	item.UnitGSTPercent = prod.GSTPercent
	item.UnitDiscountPercent = pricing.DiscountPercent(prod.Price, prod.MRP, prod.DiscountPercent)
	return item, nil
}

// UpdateItemQuantity sets a line's quantity, repricing from the stored
// snapshot. A quantity of zero or less removes the line.
func (s *Service) UpdateItemQuantity(ctx context.Context, id identity.Identity, itemID int64, qty int) (*Detail, error) {
	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}

	if qty <= 0 {
		return s.RemoveItem(ctx, id, itemID)
	}

	item, err := s.carts.GetItem(ctx, itemID, c.ID)
	if err != nil {
		return nil, err
	}

	line := pricing.PriceLine(pricing.LineItem{
		UnitPrice:       item.UnitPrice,
		UnitMRP:         item.UnitMRP,
		DiscountPercent: item.UnitDiscountPercent,
		GSTPercent:      item.UnitGSTPercent,
		Quantity:        qty,
	})
	if err := s.carts.UpdateItemQuantity(ctx, itemID, qty, line); err != nil {
		return nil, errors.Wrap(err, "update cart item")
	}

	if err := s.touch(ctx, c); err != nil {
		return nil, err
	}
	return s.detailAfterRecompute(ctx, c.ID)
}

// RemoveItem deletes one line from the identity's active cart.
func (s *Service) RemoveItem(ctx context.Context, id identity.Identity, itemID int64) (*Detail, error) {
	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItem(ctx, itemID, c.ID); err != nil {
		return nil, err
	}
	return s.detailAfterRecompute(ctx, c.ID)
}

// Clear empties the identity's active cart: items, coupons via cascade at
// recompute, and totals.
func (s *Service) Clear(ctx context.Context, id identity.Identity) (*Detail, error) {
	c, err := s.activeCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.carts.DeleteAllItems(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "clear cart items")
	}
	return s.detailAfterRecompute(ctx, c.ID)
}

// Get returns the identity's active cart in full, creating it when absent.
func (s *Service) Get(ctx context.Context, id identity.Identity) (*Detail, error) {
	c, err := s.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, c.ID)
}

func (s *Service) activeCart(ctx context.Context, id identity.Identity) (*Cart, error) {
	c, err := s.carts.FindActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RecomputeTotals re-derives the cart summary from its lines and attached
// coupons and persists it. Satisfies coupon.Recomputer.
func (s *Service) RecomputeTotals(ctx context.Context, cartID int64) error {
	items, err := s.carts.ListItems(ctx, cartID)
	if err != nil {
		return errors.Wrap(err, "list cart items")
	}
	discounts, err := s.carts.ListAppliedDiscounts(ctx, cartID)
	if err != nil {
		return errors.Wrap(err, "list applied discounts")
	}

	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return err
	}

	lineItems := make([]pricing.LineItem, len(items))
	for i, it := range items {
		lineItems[i] = pricing.LineItem{
			UnitPrice:       it.UnitPrice,
			UnitMRP:         it.UnitMRP,
			DiscountPercent: it.UnitDiscountPercent,
			GSTPercent:      it.UnitGSTPercent,
			Quantity:        it.Quantity,
		}
	}
	coupons := make([]pricing.AppliedCoupon, len(discounts))
	for i, d := range discounts {
		coupons[i] = pricing.AppliedCoupon{
			DiscountAmount: d.DiscountAmount,
			FreeShipping:   d.FreeShipping,
		}
	}

	t := pricing.ComputeTotals(lineItems, c.ShippingAmount, coupons)
	return s.carts.UpdateTotals(ctx, cartID, t)
}

// GetCartView projects the cart for coupon validation. Satisfies
// coupon.CartSource.
func (s *Service) GetCartView(ctx context.Context, cartID int64) (*coupon.CartView, error) {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, coupon.ErrCartNotFound
		}
		return nil, err
	}
	items, err := s.carts.ListItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}

	view := &coupon.CartView{
		ID:             c.ID,
		Subtotal:       c.Subtotal,
		ShippingAmount: c.ShippingAmount,
		Lines:          make([]coupon.CartLine, len(items)),
	}
	for i, it := range items {
		view.Lines[i] = coupon.CartLine{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return view, nil
}

// ExpireStale sweeps carts past their TTL. Run periodically by the app.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.carts.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "expire stale carts")
	}
	if n > 0 {
		s.lg.Info("expired stale carts", zap.Int64("count", n))
	}
	return n, nil
}

// touch pushes the cart's expiry forward on activity so an in-use cart never
// expires mid-session.
func (s *Service) touch(ctx context.Context, c *Cart) error {
	exp := s.now().Add(s.ttl(c.Identity))
	if err := s.carts.ExtendExpiry(ctx, c.ID, exp); err != nil {
		return errors.Wrap(err, "extend cart expiry")
	}
	return nil
}

func (s *Service) detailAfterRecompute(ctx context.Context, cartID int64) (*Detail, error) {
	if err := s.RecomputeTotals(ctx, cartID); err != nil {
		return nil, err
	}
	return s.detail(ctx, cartID)
}

func (s *Service) detail(ctx context.Context, cartID int64) (*Detail, error) {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	items, err := s.carts.ListItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}
	discounts, err := s.carts.ListAppliedDiscounts(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list applied discounts")
	}
	return &Detail{Cart: c, Items: items, Coupons: discounts}, nil
}

var (
	_ coupon.CartSource = (*Service)(nil)
	_ coupon.Recomputer = (*Service)(nil)
)
