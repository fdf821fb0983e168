package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/order"
)

// OrderRepo implements order.Repository.
type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, order_number, user_id, session_id, cart_id,
status, payment_status, subtotal, tax_amount, discount_amount,
shipping_amount, total_amount, currency, COALESCE(shipping_method, ''),
COALESCE(billing_address_id, 0), COALESCE(shipping_address_id, 0),
created_at, updated_at`

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		userID    *int64
		sessionID *string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &userID, &sessionID, &o.CartID,
		&o.Status, &o.PaymentStatus, &o.Subtotal, &o.TaxAmount, &o.DiscountAmount,
		&o.ShippingAmount, &o.TotalAmount, &o.Currency, &o.ShippingMethod,
		&o.BillingAddressID, &o.ShippingAddressID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Identity = identityFrom(userID, sessionID)
	return o, nil
}

const insertOrderSQL = `
INSERT INTO orders (
	order_number, user_id, session_id, cart_id, status, payment_status,
	subtotal, tax_amount, discount_amount, shipping_amount, total_amount,
	currency, shipping_method, billing_address_id, shipping_address_id
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), NULLIF($14, 0), NULLIF($15, 0))
RETURNING id`

const insertOrderItemSQL = `
INSERT INTO order_items (
	order_id, product_id, product_variant_id, title, sku, quantity,
	unit_price, unit_mrp, unit_gst_percent, line_total, line_discount, line_tax
)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, 0::numeric), $9, $10, $11, $12)`

// Create writes the header and all items in one transaction.
func (r *OrderRepo) Create(ctx context.Context, o *order.Order) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	userID, sessionID := identityArgs(o.Identity)
	var id int64
	if err := tx.QueryRow(ctx, insertOrderSQL,
		o.OrderNumber, userID, sessionID, o.CartID, o.Status, o.PaymentStatus,
		o.Subtotal, o.TaxAmount, o.DiscountAmount, o.ShippingAmount, o.TotalAmount,
		o.Currency, o.ShippingMethod, o.BillingAddressID, o.ShippingAddressID,
	).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		it := &o.Items[i]
		if _, err := tx.Exec(ctx, insertOrderItemSQL,
			id, it.ProductID, it.VariantID, it.Title, it.SKU, it.Quantity,
			it.UnitPrice, it.UnitMRP, it.UnitGSTPercent,
			it.LineTotal, it.LineDiscount, it.LineTax,
		); err != nil {
			return 0, errors.Wrap(err, "insert order item")
		}
		it.OrderID = id
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit order")
	}
	return id, nil
}

const getOrderSQL = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1`

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.listItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

const getOrderByNumberSQL = `
SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1`

func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.listItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

const listOrdersSQL = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1 OR session_id = $2
ORDER BY created_at DESC`

func (r *OrderRepo) ListForIdentity(ctx context.Context, id identity.Identity) ([]order.Order, error) {
	userID, sessionID := identityArgs(id)
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

const listOrderItemsSQL = `
SELECT id, order_id, product_id, product_variant_id, title, COALESCE(sku, ''),
       quantity, unit_price, COALESCE(unit_mrp, 0), unit_gst_percent,
       line_total, line_discount, line_tax
FROM order_items
WHERE order_id = $1
ORDER BY id`

func (r *OrderRepo) listItems(ctx context.Context, orderID int64) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, listOrderItemsSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query order items")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Title, &it.SKU,
			&it.Quantity, &it.UnitPrice, &it.UnitMRP, &it.UnitGSTPercent,
			&it.LineTotal, &it.LineDiscount, &it.LineTax,
		)
		return it, err
	})
}

const updateOrderStatusSQL = `
UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`

func (r *OrderRepo) UpdateStatus(ctx context.Context, id int64, status order.Status, pay order.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status, pay)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

var _ order.Repository = (*OrderRepo)(nil)
