package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/pricing"
)

// CartRepo implements cart.Repository.
type CartRepo struct {
	pool *pgxpool.Pool
}

func NewCartRepo(pool *pgxpool.Pool) *CartRepo {
	return &CartRepo{pool: pool}
}

// identityArgs splits an identity into the nullable column pair carts and
// orders store.
func identityArgs(id identity.Identity) (userID *int64, sessionID *string) {
	if uid, ok := id.UserID(); ok {
		return &uid, nil
	}
	if sid, ok := id.SessionID(); ok {
		return nil, &sid
	}
	return nil, nil
}

func identityFrom(userID *int64, sessionID *string) identity.Identity {
	switch {
	case userID != nil:
		return identity.User(*userID)
	case sessionID != nil:
		return identity.Guest(*sessionID)
	default:
		return identity.Identity{}
	}
}

const cartColumns = `id, user_id, session_id, status, currency,
subtotal, tax_amount, discount_amount, shipping_amount, total_amount,
item_count, expires_at, created_at, updated_at`

func scanCart(row pgx.CollectableRow) (*cart.Cart, error) {
	var (
		c         cart.Cart
		userID    *int64
		sessionID *string
		expires   *time.Time
	)
	err := row.Scan(
		&c.ID, &userID, &sessionID, &c.Status, &c.Currency,
		&c.Subtotal, &c.TaxAmount, &c.DiscountAmount, &c.ShippingAmount, &c.TotalAmount,
		&c.ItemCount, &expires, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Identity = identityFrom(userID, sessionID)
	if expires != nil {
		c.ExpiresAt = *expires
	}
	return &c, nil
}

const findActiveCartSQL = `
SELECT ` + cartColumns + `
FROM carts
WHERE status = 'active' AND (user_id = $1 OR session_id = $2)`

func (r *CartRepo) FindActive(ctx context.Context, id identity.Identity) (*cart.Cart, error) {
	userID, sessionID := identityArgs(id)
	rows, err := r.pool.Query(ctx, findActiveCartSQL, userID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "query active cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrCartNotFound
	}
	return c, err
}

const getCartSQL = `
SELECT ` + cartColumns + `
FROM carts
WHERE id = $1`

func (r *CartRepo) GetByID(ctx context.Context, cartID int64) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, getCartSQL, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrCartNotFound
	}
	return c, err
}

const createCartSQL = `
INSERT INTO carts (user_id, session_id, expires_at)
VALUES ($1, $2, $3)
RETURNING ` + cartColumns

func (r *CartRepo) Create(ctx context.Context, id identity.Identity, expiresAt time.Time) (*cart.Cart, error) {
	userID, sessionID := identityArgs(id)
	rows, err := r.pool.Query(ctx, createCartSQL, userID, sessionID, expiresAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert cart")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if isUniqueViolation(err) {
		return nil, cart.ErrCartExists
	}
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const setCartStatusSQL = `
UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`

func (r *CartRepo) SetStatus(ctx context.Context, cartID int64, status cart.Status) error {
	tag, err := r.pool.Exec(ctx, setCartStatusSQL, cartID, status)
	if err != nil {
		return errors.Wrap(err, "update cart status")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrCartNotFound
	}
	return nil
}

const extendCartExpirySQL = `
UPDATE carts SET expires_at = $2, updated_at = now() WHERE id = $1`

func (r *CartRepo) ExtendExpiry(ctx context.Context, cartID int64, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, extendCartExpirySQL, cartID, expiresAt)
	return errors.Wrap(err, "extend cart expiry")
}

const expireStaleCartsSQL = `
UPDATE carts SET status = 'expired', updated_at = now()
WHERE status = 'active' AND expires_at < $1`

func (r *CartRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireStaleCartsSQL, now)
	if err != nil {
		return 0, errors.Wrap(err, "expire stale carts")
	}
	return tag.RowsAffected(), nil
}

const itemColumns = `id, cart_id, product_id, product_variant_id, quantity,
unit_price, COALESCE(unit_mrp, 0), unit_discount_percent, unit_gst_percent,
line_total, line_discount, line_tax, selected_attributes`

func scanItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(
		&it.ID, &it.CartID, &it.ProductID, &it.VariantID, &it.Quantity,
		&it.UnitPrice, &it.UnitMRP, &it.UnitDiscountPercent, &it.UnitGSTPercent,
		&it.LineTotal, &it.LineDiscount, &it.LineTax, &it.SelectedAttributes,
	)
	return it, err
}

const listItemsSQL = `
SELECT ` + itemColumns + `
FROM cart_items
WHERE cart_id = $1
ORDER BY id`

func (r *CartRepo) ListItems(ctx context.Context, cartID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listItemsSQL, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	return pgx.CollectRows(rows, scanItem)
}

const getItemSQL = `
SELECT ` + itemColumns + `
FROM cart_items
WHERE id = $1 AND cart_id = $2`

func (r *CartRepo) GetItem(ctx context.Context, itemID, cartID int64) (*cart.Item, error) {
	rows, err := r.pool.Query(ctx, getItemSQL, itemID, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart item")
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// The conflict target mirrors the cart_items_line_uniq index, so re-adding
// the same product+variant folds into the existing row.
const mergeItemSQL = `
INSERT INTO cart_items (
	cart_id, product_id, product_variant_id, quantity,
	unit_price, unit_mrp, unit_discount_percent, unit_gst_percent,
	line_total, line_discount, line_tax, selected_attributes
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (cart_id, product_id, COALESCE(product_variant_id, 0))
DO UPDATE SET
	quantity = cart_items.quantity + EXCLUDED.quantity,
	updated_at = now()
RETURNING ` + itemColumns

func (r *CartRepo) MergeItem(ctx context.Context, item *cart.Item) (*cart.Item, error) {
	line := pricing.PriceLine(pricing.LineItem{
		UnitPrice:       item.UnitPrice,
		UnitMRP:         item.UnitMRP,
		DiscountPercent: item.UnitDiscountPercent,
		GSTPercent:      item.UnitGSTPercent,
		Quantity:        item.Quantity,
	})
	rows, err := r.pool.Query(ctx, mergeItemSQL,
		item.CartID, item.ProductID, item.VariantID, item.Quantity,
		item.UnitPrice, item.UnitMRP, item.UnitDiscountPercent, item.UnitGSTPercent,
		line.Total, line.Discount, line.Tax, item.SelectedAttributes,
	)
	if err != nil {
		return nil, errors.Wrap(err, "merge cart item")
	}
	merged, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

const updateItemSQL = `
UPDATE cart_items
SET quantity = $2, line_total = $3, line_discount = $4, line_tax = $5, updated_at = now()
WHERE id = $1`

func (r *CartRepo) UpdateItemQuantity(ctx context.Context, itemID int64, qty int, line pricing.Line) error {
	tag, err := r.pool.Exec(ctx, updateItemSQL, itemID, qty, line.Total, line.Discount, line.Tax)
	if err != nil {
		return errors.Wrap(err, "update cart item")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

const deleteItemSQL = `
DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`

func (r *CartRepo) DeleteItem(ctx context.Context, itemID, cartID int64) error {
	tag, err := r.pool.Exec(ctx, deleteItemSQL, itemID, cartID)
	if err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

const deleteAllItemsSQL = `
DELETE FROM cart_items WHERE cart_id = $1`

func (r *CartRepo) DeleteAllItems(ctx context.Context, cartID int64) error {
	_, err := r.pool.Exec(ctx, deleteAllItemsSQL, cartID)
	return errors.Wrap(err, "delete cart items")
}

const listAppliedDiscountsSQL = `
SELECT id, coupon_id, coupon_code, discount_type, discount_amount
FROM cart_coupons
WHERE cart_id = $1
ORDER BY applied_at`

func (r *CartRepo) ListAppliedDiscounts(ctx context.Context, cartID int64) ([]cart.AppliedDiscount, error) {
	rows, err := r.pool.Query(ctx, listAppliedDiscountsSQL, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart coupons")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.AppliedDiscount, error) {
		var d cart.AppliedDiscount
		if err := row.Scan(&d.ID, &d.CouponID, &d.Code, &d.Type, &d.DiscountAmount); err != nil {
			return d, err
		}
		d.FreeShipping = d.Type == "free_shipping"
		return d, nil
	})
}

const updateTotalsSQL = `
UPDATE carts
SET subtotal = $2, tax_amount = $3, discount_amount = $4,
    shipping_amount = $5, total_amount = $6, item_count = $7,
    updated_at = now()
WHERE id = $1`

func (r *CartRepo) UpdateTotals(ctx context.Context, cartID int64, t pricing.Totals) error {
	_, err := r.pool.Exec(ctx, updateTotalsSQL, cartID,
		t.Subtotal, t.TaxAmount, t.DiscountAmount, t.ShippingAmount, t.TotalAmount, t.ItemCount)
	return errors.Wrap(err, "update cart totals")
}

var _ cart.Repository = (*CartRepo)(nil)
