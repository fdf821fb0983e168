package coupon

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

// Apply validates a code against the cart and attaches it. Re-applying a
// coupon that is already on the cart succeeds without a second link or a
// quota hit. Attachment never writes the usage ledger.
func (s *Service) Apply(ctx context.Context, code string, cartID int64, id identity.Identity) (*Applied, *ValidationError, error) {
	c, vErr, err := s.Validate(ctx, code, cartID, id, ValidateOptions{AllowAlreadyApplied: true})
	if err != nil || vErr != nil {
		return nil, vErr, err
	}

	view, err := s.carts.GetCartView(ctx, cartID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart")
	}

	amount, err := s.discountFor(ctx, c, view)
	if err != nil {
		return nil, nil, err
	}

	a := &Applied{
		CartID:         cartID,
		CouponID:       c.ID,
		Code:           c.Code,
		Type:           c.Type,
		Value:          c.Value,
		DiscountAmount: amount,
	}
	if err := s.applied.Upsert(ctx, a); err != nil {
		return nil, nil, errors.Wrap(err, "attach coupon")
	}
	if err := s.recompute.RecomputeTotals(ctx, cartID); err != nil {
		return nil, nil, errors.Wrap(err, "recompute totals")
	}

	s.lg.Info("coupon applied",
		zap.String("code", c.Code),
		zap.Int64("cart_id", cartID),
		zap.String("discount", amount.StringFixed(2)),
	)
	return a, nil, nil
}

// Preview runs validation and computes the discount without attaching
// anything. Used by the dry-run validate endpoint.
func (s *Service) Preview(ctx context.Context, code string, cartID int64, id identity.Identity) (decimal.Decimal, *ValidationError, error) {
	c, vErr, err := s.Validate(ctx, code, cartID, id, ValidateOptions{AllowAlreadyApplied: true})
	if err != nil || vErr != nil {
		return decimal.Zero, vErr, err
	}
	view, err := s.carts.GetCartView(ctx, cartID)
	if err != nil {
		return decimal.Zero, nil, errors.Wrap(err, "load cart")
	}
	amount, err := s.discountFor(ctx, c, view)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return amount, nil, nil
}

// Remove detaches one applied coupon from the cart and reprices it.
func (s *Service) Remove(ctx context.Context, cartCouponID, cartID int64) error {
	if err := s.applied.Delete(ctx, cartCouponID, cartID); err != nil {
		return errors.Wrap(err, "detach coupon")
	}
	if err := s.recompute.RecomputeTotals(ctx, cartID); err != nil {
		return errors.Wrap(err, "recompute totals")
	}
	return nil
}

// RemoveByCoupon detaches by coupon id rather than link id, as the removal
// endpoint addresses coupons.
func (s *Service) RemoveByCoupon(ctx context.Context, cartID, couponID int64) error {
	attached, err := s.applied.ListByCart(ctx, cartID)
	if err != nil {
		return errors.Wrap(err, "list attached coupons")
	}
	for _, a := range attached {
		if a.CouponID == couponID {
			return s.Remove(ctx, a.ID, cartID)
		}
	}
	return ErrCouponNotFound
}

// Revalidate recomputes every attached coupon against the current cart state,
// detaching the ones that no longer pass and refreshing stale discount
// amounts. Called before checkout repricing.
func (s *Service) Revalidate(ctx context.Context, cartID int64, id identity.Identity) ([]Applied, error) {
	attached, err := s.applied.ListByCart(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list attached coupons")
	}

	kept := make([]Applied, 0, len(attached))
	for _, a := range attached {
		c, vErr, err := s.Validate(ctx, a.Code, cartID, id, ValidateOptions{AllowAlreadyApplied: true})
		if err != nil {
			return nil, err
		}
		if vErr != nil {
			s.lg.Info("detaching invalidated coupon",
				zap.String("code", a.Code),
				zap.Int64("cart_id", cartID),
				zap.String("reason", string(vErr.Code)),
			)
			if err := s.applied.Delete(ctx, a.ID, cartID); err != nil {
				return nil, errors.Wrap(err, "detach invalidated coupon")
			}
			continue
		}

		view, err := s.carts.GetCartView(ctx, cartID)
		if err != nil {
			return nil, errors.Wrap(err, "load cart")
		}
		amount, err := s.discountFor(ctx, c, view)
		if err != nil {
			return nil, err
		}
		if !amount.Equal(a.DiscountAmount) {
			a.DiscountAmount = amount
			if err := s.applied.Upsert(ctx, &a); err != nil {
				return nil, errors.Wrap(err, "refresh coupon discount")
			}
		}
		kept = append(kept, a)
	}

	if err := s.recompute.RecomputeTotals(ctx, cartID); err != nil {
		return nil, errors.Wrap(err, "recompute totals")
	}
	return kept, nil
}

// ConsumeRequest carries the order context for ledger writes at confirmation.
type ConsumeRequest struct {
	OrderID     int64
	CartID      int64
	Identity    identity.Identity
	OrderAmount decimal.Decimal
}

// ConsumeForOrder turns the cart's attached coupons into permanent ledger
// entries. A coupon that went over its limits between apply and confirm is
// skipped with a warning rather than failing the paid order. All cart links
// are gone when this returns.
func (s *Service) ConsumeForOrder(ctx context.Context, req ConsumeRequest) error {
	attached, err := s.applied.ListByCart(ctx, req.CartID)
	if err != nil {
		return errors.Wrap(err, "list attached coupons")
	}

	for _, a := range attached {
		c, err := s.coupons.FindByCode(ctx, a.Code)
		if err != nil {
			if errors.Is(err, ErrCouponNotFound) {
				s.lg.Warn("attached coupon vanished before consumption",
					zap.String("code", a.Code), zap.Int64("order_id", req.OrderID))
				continue
			}
			return errors.Wrapf(err, "lookup coupon %q", a.Code)
		}

		if over, reason := s.overLimit(ctx, c, req.Identity); over {
			s.lg.Warn("skipping over-limit coupon at confirmation",
				zap.String("code", a.Code),
				zap.Int64("order_id", req.OrderID),
				zap.String("reason", reason),
			)
			continue
		}

		rec := UsageRecord{
			CouponID:       c.ID,
			Identity:       req.Identity,
			OrderID:        req.OrderID,
			CartID:         req.CartID,
			DiscountAmount: a.DiscountAmount,
			OrderAmount:    req.OrderAmount,
			UsedAt:         s.now(),
		}
		if err := s.ledger.RecordUsage(ctx, rec); err != nil {
			return errors.Wrapf(err, "record usage for %q", a.Code)
		}
	}

	// Clears links left by skipped coupons; consumed ones are already gone.
	if err := s.applied.DeleteAllForCart(ctx, req.CartID); err != nil {
		return errors.Wrap(err, "clear cart coupons")
	}
	return nil
}

func (s *Service) overLimit(ctx context.Context, c *Coupon, id identity.Identity) (bool, string) {
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return true, "total usage limit reached"
	}
	if c.UsageLimitPerUser > 0 {
		used, err := s.ledger.CountForIdentity(ctx, c.ID, id)
		if err != nil {
			// Treat a count failure as over-limit: the order stays confirmed,
			// the coupon just is not consumed.
			s.lg.Warn("usage count lookup failed", zap.String("code", c.Code), zap.Error(err))
			return true, "usage count unavailable"
		}
		if used >= c.UsageLimitPerUser {
			return true, "per-user limit reached"
		}
	}
	return false, ""
}

func (s *Service) discountFor(ctx context.Context, c *Coupon, view *CartView) (decimal.Decimal, error) {
	var metas []catalog.ProductMeta
	if c.scoped() && c.Type == TypeBuyXGetY {
		var err error
		metas, err = s.meta.GetProductsMeta(ctx, view.ProductIDs())
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "load product meta")
		}
	}
	return Discount(c, view, metas), nil
}

// CreateCoupon registers a new coupon definition. Codes are stored uppercase
// and must be unique; duplicates come back as a DUPLICATE_CODE rejection.
func (s *Service) CreateCoupon(ctx context.Context, c *Coupon) (*ValidationError, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	if _, err := s.coupons.FindByCode(ctx, c.Code); err == nil {
		return &ValidationError{Code: CodeDuplicateCode, Message: "coupon code already exists"}, nil
	} else if !errors.Is(err, ErrCouponNotFound) {
		return nil, errors.Wrap(err, "check code uniqueness")
	}

	id, err := s.coupons.Create(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	c.ID = id
	s.lg.Info("coupon created", zap.String("code", c.Code), zap.Int64("id", id))
	return nil, nil
}

// DeactivateCoupon soft-disables a coupon. Existing ledger entries stay.
func (s *Service) DeactivateCoupon(ctx context.Context, id int64) error {
	return s.coupons.Deactivate(ctx, id)
}

// DeleteCoupon removes a coupon definition outright. Coupons with ledger
// history must be deactivated instead, so usage records keep a valid parent.
func (s *Service) DeleteCoupon(ctx context.Context, id int64) (*ValidationError, error) {
	err := s.coupons.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCouponInUse) {
			return &ValidationError{Code: CodeInUse, Message: "coupon has been used and cannot be deleted"}, nil
		}
		return nil, errors.Wrap(err, "delete coupon")
	}
	return nil, nil
}

// ReconcileUsageCounts re-derives every usage_count from the ledger,
// reporting how many counters had drifted.
func (s *Service) ReconcileUsageCounts(ctx context.Context) (int, error) {
	fixed, err := s.coupons.ReconcileUsageCounts(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "reconcile usage counts")
	}
	if fixed > 0 {
		s.lg.Warn("usage counters drifted from ledger", zap.Int("fixed", fixed))
	}
	return fixed, nil
}
