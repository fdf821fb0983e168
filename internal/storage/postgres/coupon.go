package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
)

// CouponRepo implements coupon.Repository.
type CouponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *CouponRepo {
	return &CouponRepo{pool: pool}
}

const couponColumns = `id, code, name, COALESCE(description, ''), type, value,
COALESCE(min_order_amount, 0), COALESCE(max_discount_amount, 0),
valid_from, valid_until, COALESCE(usage_limit, 0), usage_count, usage_limit_per_user,
stackable, is_active, applicable_to,
COALESCE(applicable_categories, '{}'), COALESCE(applicable_products, '{}'), COALESCE(applicable_brands, '{}'),
COALESCE(excluded_categories, '{}'), COALESCE(excluded_products, '{}'), COALESCE(excluded_brands, '{}'),
COALESCE(created_by, 0)`

func scanCoupon(row pgx.CollectableRow) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Name, &c.Description, &c.Type, &c.Value,
		&c.MinOrderAmount, &c.MaxDiscountAmount,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.UsageLimitPerUser,
		&c.Stackable, &c.IsActive, &c.ApplicableTo,
		&c.ApplicableCategories, &c.ApplicableProducts, &c.ApplicableBrands,
		&c.ExcludedCategories, &c.ExcludedProducts, &c.ExcludedBrands,
		&c.CreatedBy,
	)
	return &c, err
}

const findCouponSQL = `
SELECT ` + couponColumns + `
FROM coupons
WHERE code = upper($1)`

func (r *CouponRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, errors.Wrap(err, "query coupon")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrCouponNotFound
	}
	return c, err
}

const createCouponSQL = `
INSERT INTO coupons (
	code, name, description, type, value,
	min_order_amount, max_discount_amount, valid_from, valid_until,
	usage_limit, usage_limit_per_user, stackable, is_active, applicable_to,
	applicable_categories, applicable_products, applicable_brands,
	excluded_categories, excluded_products, excluded_brands, created_by
)
VALUES (
	upper($1), $2, NULLIF($3, ''), $4, $5,
	NULLIF($6, 0::numeric), NULLIF($7, 0::numeric), $8, $9,
	NULLIF($10, 0), $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, NULLIF($21, 0)
)
RETURNING id`

func (r *CouponRepo) Create(ctx context.Context, c *coupon.Coupon) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, createCouponSQL,
		c.Code, c.Name, c.Description, c.Type, c.Value,
		c.MinOrderAmount, c.MaxDiscountAmount, c.ValidFrom, c.ValidUntil,
		c.UsageLimit, c.UsageLimitPerUser, c.Stackable, c.IsActive, c.ApplicableTo,
		c.ApplicableCategories, c.ApplicableProducts, c.ApplicableBrands,
		c.ExcludedCategories, c.ExcludedProducts, c.ExcludedBrands, c.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert coupon")
	}
	return id, nil
}

const deactivateCouponSQL = `
UPDATE coupons SET is_active = FALSE, updated_at = now() WHERE id = $1`

func (r *CouponRepo) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, id)
	if err != nil {
		return errors.Wrap(err, "deactivate coupon")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

const deleteCouponSQL = `
DELETE FROM coupons
WHERE id = $1
  AND NOT EXISTS (SELECT 1 FROM coupon_usage WHERE coupon_id = $1)`

const couponHasUsageSQL = `
SELECT EXISTS (SELECT 1 FROM coupon_usage WHERE coupon_id = $1)`

func (r *CouponRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var used bool
	if err := r.pool.QueryRow(ctx, couponHasUsageSQL, id).Scan(&used); err != nil {
		return errors.Wrap(err, "check coupon usage")
	}
	if used {
		return coupon.ErrCouponInUse
	}
	return coupon.ErrCouponNotFound
}

// Every counter is re-derived from the ledger in one statement; only drifted
// rows are written.
const reconcileUsageSQL = `
UPDATE coupons c
SET usage_count = l.cnt, updated_at = now()
FROM (
	SELECT co.id, COALESCE(u.cnt, 0) AS cnt
	FROM coupons co
	LEFT JOIN (
		SELECT coupon_id, COUNT(*) AS cnt
		FROM coupon_usage
		GROUP BY coupon_id
	) u ON u.coupon_id = co.id
) l
WHERE c.id = l.id AND c.usage_count <> l.cnt`

func (r *CouponRepo) ReconcileUsageCounts(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, reconcileUsageSQL)
	if err != nil {
		return 0, errors.Wrap(err, "reconcile usage counts")
	}
	return int(tag.RowsAffected()), nil
}

var _ coupon.Repository = (*CouponRepo)(nil)

// AppliedCouponRepo implements coupon.AppliedRepository over cart_coupons.
type AppliedCouponRepo struct {
	pool *pgxpool.Pool
}

func NewAppliedCouponRepo(pool *pgxpool.Pool) *AppliedCouponRepo {
	return &AppliedCouponRepo{pool: pool}
}

const listCartCouponsSQL = `
SELECT id, cart_id, coupon_id, coupon_code, discount_type, discount_value, discount_amount
FROM cart_coupons
WHERE cart_id = $1
ORDER BY applied_at`

func scanApplied(row pgx.CollectableRow) (coupon.Applied, error) {
	var a coupon.Applied
	err := row.Scan(&a.ID, &a.CartID, &a.CouponID, &a.Code, &a.Type, &a.Value, &a.DiscountAmount)
	return a, err
}

func (r *AppliedCouponRepo) ListByCart(ctx context.Context, cartID int64) ([]coupon.Applied, error) {
	rows, err := r.pool.Query(ctx, listCartCouponsSQL, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart coupons")
	}
	return pgx.CollectRows(rows, scanApplied)
}

const upsertCartCouponSQL = `
INSERT INTO cart_coupons (cart_id, coupon_id, coupon_code, discount_type, discount_value, discount_amount)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (cart_id, coupon_id)
DO UPDATE SET discount_amount = EXCLUDED.discount_amount
RETURNING id`

func (r *AppliedCouponRepo) Upsert(ctx context.Context, a *coupon.Applied) error {
	err := r.pool.QueryRow(ctx, upsertCartCouponSQL,
		a.CartID, a.CouponID, a.Code, a.Type, a.Value, a.DiscountAmount,
	).Scan(&a.ID)
	return errors.Wrap(err, "upsert cart coupon")
}

const deleteCartCouponSQL = `
DELETE FROM cart_coupons WHERE id = $1 AND cart_id = $2`

func (r *AppliedCouponRepo) Delete(ctx context.Context, cartCouponID, cartID int64) error {
	tag, err := r.pool.Exec(ctx, deleteCartCouponSQL, cartCouponID, cartID)
	if err != nil {
		return errors.Wrap(err, "delete cart coupon")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponNotFound
	}
	return nil
}

const deleteAllCartCouponsSQL = `
DELETE FROM cart_coupons WHERE cart_id = $1`

func (r *AppliedCouponRepo) DeleteAllForCart(ctx context.Context, cartID int64) error {
	_, err := r.pool.Exec(ctx, deleteAllCartCouponsSQL, cartID)
	return errors.Wrap(err, "delete cart coupons")
}

var _ coupon.AppliedRepository = (*AppliedCouponRepo)(nil)
