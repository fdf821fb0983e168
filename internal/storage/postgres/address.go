package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/checkout"
)

// AddressRepo implements checkout.AddressRepository.
type AddressRepo struct {
	pool *pgxpool.Pool
}

func NewAddressRepo(pool *pgxpool.Pool) *AddressRepo {
	return &AddressRepo{pool: pool}
}

const insertAddressSQL = `
INSERT INTO addresses (user_id, type, full_name, phone, line1, line2, city, state, postal_code, country)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
RETURNING id`

func (r *AddressRepo) Save(ctx context.Context, a *checkout.Address) (int64, error) {
	country := a.Country
	if country == "" {
		country = "IN"
	}
	var id int64
	err := r.pool.QueryRow(ctx, insertAddressSQL,
		a.UserID, a.Type, a.FullName, a.Phone, a.Line1, a.Line2,
		a.City, a.State, a.PostalCode, country,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert address")
	}
	a.ID = id
	return id, nil
}

const getAddressSQL = `
SELECT id, user_id, type, full_name, phone, line1, COALESCE(line2, ''),
       city, state, postal_code, country
FROM addresses
WHERE id = $1`

func (r *AddressRepo) GetByID(ctx context.Context, id int64) (*checkout.Address, error) {
	var a checkout.Address
	err := r.pool.QueryRow(ctx, getAddressSQL, id).Scan(
		&a.ID, &a.UserID, &a.Type, &a.FullName, &a.Phone, &a.Line1, &a.Line2,
		&a.City, &a.State, &a.PostalCode, &a.Country,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkout.ErrAddressNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query address")
	}
	return &a, nil
}

var _ checkout.AddressRepository = (*AddressRepo)(nil)

// PaymentRepo implements checkout.PaymentRepository.
type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const insertPaymentSQL = `
INSERT INTO payments (order_id, provider, amount, currency, status, txn_id)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
RETURNING id`

func (r *PaymentRepo) Create(ctx context.Context, p *checkout.PaymentRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, insertPaymentSQL,
		p.OrderID, p.Provider, p.Amount, p.Currency, p.Status, p.TxnID,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert payment")
	}
	p.ID = id
	return id, nil
}

const paymentByOrderSQL = `
SELECT id, order_id, provider, amount, currency, status, COALESCE(txn_id, '')
FROM payments
WHERE order_id = $1
ORDER BY id DESC
LIMIT 1`

func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID int64) (*checkout.PaymentRecord, error) {
	var p checkout.PaymentRecord
	err := r.pool.QueryRow(ctx, paymentByOrderSQL, orderID).Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.Amount, &p.Currency, &p.Status, &p.TxnID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkout.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query payment")
	}
	return &p, nil
}

const capturePaymentSQL = `
UPDATE payments SET status = 'captured', txn_id = $2 WHERE order_id = $1`

func (r *PaymentRepo) MarkCaptured(ctx context.Context, orderID int64, txnID string) error {
	_, err := r.pool.Exec(ctx, capturePaymentSQL, orderID, txnID)
	return errors.Wrap(err, "capture payment")
}

var _ checkout.PaymentRepository = (*PaymentRepo)(nil)
