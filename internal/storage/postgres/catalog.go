package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
)

// CatalogRepo implements catalog.Repository.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

const getProductSQL = `
SELECT id, category_id, title, brand, COALESCE(sku, ''),
       price, COALESCE(mrp, 0), gst_percent, discount_percent,
       in_stock, stock_qty
FROM products
WHERE id = $1`

func (r *CatalogRepo) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (*catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(
			&p.ID, &p.CategoryID, &p.Title, &p.Brand, &p.SKU,
			&p.Price, &p.MRP, &p.GSTPercent, &p.DiscountPercent,
			&p.InStock, &p.StockQty,
		)
		return &p, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrProductNotFound
	}
	return p, err
}

const getVariantSQL = `
SELECT id, product_id, sku, price, COALESCE(mrp, 0),
       gst_percent, discount_percent, in_stock, stock_qty
FROM product_variants
WHERE id = $1`

func (r *CatalogRepo) GetVariant(ctx context.Context, id int64) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantSQL, id)
	if err != nil {
		return nil, errors.Wrap(err, "query variant")
	}
	v, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (*catalog.Variant, error) {
		var v catalog.Variant
		err := row.Scan(
			&v.ID, &v.ProductID, &v.SKU, &v.Price, &v.MRP,
			&v.GSTPercent, &v.DiscountPercent, &v.InStock, &v.StockQty,
		)
		return &v, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrVariantNotFound
	}
	return v, err
}

const productsMetaSQL = `
SELECT id, category_id, brand
FROM products
WHERE id = ANY($1)`

func (r *CatalogRepo) GetProductsMeta(ctx context.Context, ids []int64) ([]catalog.ProductMeta, error) {
	rows, err := r.pool.Query(ctx, productsMetaSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query product meta")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ProductMeta, error) {
		var m catalog.ProductMeta
		err := row.Scan(&m.ID, &m.CategoryID, &m.Brand)
		return m, err
	})
}

// The WHERE guard makes the decrement conditional: two concurrent orders for
// the last unit race on the row lock and exactly one succeeds.
const decrementStockSQL = `
UPDATE products
SET stock_qty = stock_qty - $2,
    in_stock = stock_qty - $2 > 0,
    updated_at = now()
WHERE id = $1 AND stock_qty >= $2`

func (r *CatalogRepo) DecrementStock(ctx context.Context, productID int64, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return false, errors.Wrap(err, "decrement stock")
	}
	return tag.RowsAffected() > 0, nil
}

var _ catalog.Repository = (*CatalogRepo)(nil)
