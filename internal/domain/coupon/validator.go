package coupon

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

// MetaSource resolves product metadata for applicability scoping.
type MetaSource interface {
	GetProductsMeta(ctx context.Context, ids []int64) ([]catalog.ProductMeta, error)
}

// ValidateOptions tweaks the validation gates for the two non-default call
// sites: idempotent re-apply and dry-run display.
type ValidateOptions struct {
	// SkipUsageChecks disables the per-identity gate. Used only on the
	// idempotent re-apply path; final consumption always re-checks.
	SkipUsageChecks bool
	// AllowAlreadyApplied turns "already attached to this cart" into an
	// idempotent success instead of a rejection.
	AllowAlreadyApplied bool
}

// Service validates, attaches, detaches, and consumes coupons.
type Service struct {
	coupons   Repository
	applied   AppliedRepository
	ledger    Ledger
	carts     CartSource
	meta      MetaSource
	recompute Recomputer
	lg        *zap.Logger
	now       func() time.Time
}

// NewService wires a coupon Service from its collaborators.
func NewService(
	coupons Repository,
	applied AppliedRepository,
	ledger Ledger,
	carts CartSource,
	meta MetaSource,
	recompute Recomputer,
	lg *zap.Logger,
) *Service {
	return &Service{
		coupons:   coupons,
		applied:   applied,
		ledger:    ledger,
		carts:     carts,
		meta:      meta,
		recompute: recompute,
		lg:        lg,
		now:       time.Now,
	}
}

// Validate runs the gate checks in order and short-circuits on the first
// failure. A *ValidationError return is a business rejection; any other error
// is infrastructure.
func (s *Service) Validate(ctx context.Context, code string, cartID int64, id identity.Identity, opts ValidateOptions) (*Coupon, *ValidationError, error) {
	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCouponNotFound) {
			return nil, failNotFound(code), nil
		}
		return nil, nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.IsActive {
		return nil, &ValidationError{Code: CodeInactive, Message: "coupon is not active"}, nil
	}

	now := s.now()
	if now.Before(c.ValidFrom) {
		return nil, &ValidationError{Code: CodeNotStarted, Message: "coupon is not valid yet"}, nil
	}
	if now.After(c.ValidUntil) {
		return nil, &ValidationError{Code: CodeExpired, Message: "coupon has expired"}, nil
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, &ValidationError{Code: CodeTotalUsageLimitExceeded, Message: "coupon usage limit exceeded"}, nil
	}

	if !opts.SkipUsageChecks {
		used, err := s.ledger.CountForIdentity(ctx, c.ID, id)
		if err != nil {
			return nil, nil, errors.Wrap(err, "count coupon usage")
		}
		if c.UsageLimitPerUser > 0 && used >= c.UsageLimitPerUser {
			return nil, &ValidationError{Code: CodeUserLimitExceeded, Message: "you have already used this coupon"}, nil
		}
	}

	view, err := s.carts.GetCartView(ctx, cartID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, &ValidationError{Code: CodeCartNotFound, Message: "cart not found"}, nil
		}
		return nil, nil, errors.Wrap(err, "load cart")
	}

	if c.MinOrderAmount.IsPositive() && view.Subtotal.LessThan(c.MinOrderAmount) {
		return nil, failShortfall(c.MinOrderAmount.Sub(view.Subtotal)), nil
	}

	attached, err := s.applied.ListByCart(ctx, cartID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list attached coupons")
	}

	for _, a := range attached {
		if a.CouponID == c.ID {
			if opts.AllowAlreadyApplied {
				return c, nil, nil
			}
			return nil, &ValidationError{Code: CodeAlreadyApplied, Message: "coupon already applied to cart"}, nil
		}
	}

	if len(attached) > 0 {
		if !c.Stackable {
			return nil, failNotStackable(attachedCodes(attached)), nil
		}
		var conflicting []string
		for _, a := range attached {
			other, err := s.coupons.FindByCode(ctx, a.Code)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "lookup attached coupon %q", a.Code)
			}
			if !other.Stackable {
				conflicting = append(conflicting, other.Code)
			}
		}
		if len(conflicting) > 0 {
			return nil, failNotStackable(conflicting), nil
		}
	}

	ok, err := s.applicable(ctx, c, view)
	if err != nil {
		return nil, nil, errors.Wrap(err, "check applicability")
	}
	if !ok {
		return nil, &ValidationError{Code: CodeNotApplicableToCart, Message: "coupon is not applicable to any items in your cart"}, nil
	}

	return c, nil, nil
}

// applicable reports whether at least one cart product is in the coupon's
// scope: matches an allow-list dimension (when any is set) and is not named
// by an exclude-list.
func (s *Service) applicable(ctx context.Context, c *Coupon, view *CartView) (bool, error) {
	if !c.scoped() {
		return true, nil
	}
	if len(view.Lines) == 0 {
		return false, nil
	}

	metas, err := s.meta.GetProductsMeta(ctx, view.ProductIDs())
	if err != nil {
		return false, err
	}

	for _, m := range metas {
		if c.eligible(m) {
			return true, nil
		}
	}
	return false, nil
}

func (c *Coupon) scoped() bool {
	return c.ApplicableTo != "" && c.ApplicableTo != "all" ||
		len(c.ApplicableCategories) > 0 || len(c.ApplicableProducts) > 0 || len(c.ApplicableBrands) > 0 ||
		len(c.ExcludedCategories) > 0 || len(c.ExcludedProducts) > 0 || len(c.ExcludedBrands) > 0
}

func (c *Coupon) eligible(m catalog.ProductMeta) bool {
	if slices.Contains(c.ExcludedProducts, m.ID) ||
		slices.Contains(c.ExcludedCategories, m.CategoryID) ||
		slices.Contains(c.ExcludedBrands, m.Brand) {
		return false
	}

	hasAllowList := len(c.ApplicableCategories) > 0 || len(c.ApplicableProducts) > 0 || len(c.ApplicableBrands) > 0
	if !hasAllowList {
		return true
	}

	return slices.Contains(c.ApplicableProducts, m.ID) ||
		slices.Contains(c.ApplicableCategories, m.CategoryID) ||
		slices.Contains(c.ApplicableBrands, m.Brand)
}

func attachedCodes(attached []Applied) []string {
	codes := make([]string, len(attached))
	for i, a := range attached {
		codes[i] = a.Code
	}
	return codes
}
