package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

// LedgerRepo implements coupon.Ledger over the append-only coupon_usage
// table.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const countUsageSQL = `
SELECT COUNT(*)
FROM coupon_usage
WHERE coupon_id = $1 AND (user_id = $2 OR session_id = $3)`

func (r *LedgerRepo) CountForIdentity(ctx context.Context, couponID int64, id identity.Identity) (int, error) {
	userID, sessionID := identityArgs(id)
	var n int
	err := r.pool.QueryRow(ctx, countUsageSQL, couponID, userID, sessionID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count coupon usage")
	}
	return n, nil
}

const insertUsageSQL = `
INSERT INTO coupon_usage (coupon_id, user_id, session_id, order_id, cart_id, discount_amount, order_amount, used_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const incrementUsageCountSQL = `
UPDATE coupons SET usage_count = usage_count + 1, updated_at = now() WHERE id = $1`

const unlinkCartCouponSQL = `
DELETE FROM cart_coupons WHERE cart_id = $1 AND coupon_id = $2`

// RecordUsage writes the ledger entry, bumps the denormalized counter, and
// removes the cart link in one transaction. Either all three land or none
// do, so a crash cannot leave a consumed coupon still attached.
func (r *LedgerRepo) RecordUsage(ctx context.Context, rec coupon.UsageRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userID, sessionID := identityArgs(rec.Identity)
	if _, err := tx.Exec(ctx, insertUsageSQL,
		rec.CouponID, userID, sessionID, rec.OrderID, rec.CartID,
		rec.DiscountAmount, rec.OrderAmount, rec.UsedAt,
	); err != nil {
		return errors.Wrap(err, "insert usage record")
	}
	if _, err := tx.Exec(ctx, incrementUsageCountSQL, rec.CouponID); err != nil {
		return errors.Wrap(err, "increment usage count")
	}
	if _, err := tx.Exec(ctx, unlinkCartCouponSQL, rec.CartID, rec.CouponID); err != nil {
		return errors.Wrap(err, "unlink cart coupon")
	}

	return errors.Wrap(tx.Commit(ctx), "commit usage record")
}

var _ coupon.Ledger = (*LedgerRepo)(nil)
