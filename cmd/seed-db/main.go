// Command seed-db loads a demo catalog of refurbished laptops plus a few
// launch coupons, so a fresh database is immediately shoppable.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lapmart/lapmart-backend/internal/storage/postgres"
)

type seedProduct struct {
	CategoryID      int64
	Title           string
	Brand           string
	SKU             string
	Price           string
	MRP             string
	GSTPercent      int
	DiscountPercent int
	StockQty        int
}

var products = []seedProduct{
	{1, "ThinkPad T14 Gen 3 (i5-1240P, 16GB, 512GB)", "Lenovo", "LM-TP-T14G3", "45999", "52999", 18, 0, 12},
	{1, "ThinkPad X1 Carbon Gen 10 (i7-1260P, 16GB, 1TB)", "Lenovo", "LM-TP-X1C10", "72999", "89999", 18, 0, 5},
	{1, "Latitude 7420 (i7-1185G7, 16GB, 512GB)", "Dell", "LM-DL-L7420", "41999", "49999", 18, 0, 9},
	{2, "MacBook Air M1 (8GB, 256GB)", "Apple", "LM-AP-MBA-M1", "54999", "66900", 18, 0, 7},
	{2, "MacBook Pro 14 M1 Pro (16GB, 512GB)", "Apple", "LM-AP-MBP14", "109999", "0", 18, 8, 3},
	{1, "EliteBook 840 G8 (i5-1135G7, 8GB, 256GB)", "HP", "LM-HP-EB840", "32999", "38999", 18, 0, 15},
}

type seedCoupon struct {
	Code           string
	Name           string
	Type           string
	Value          string
	MinOrder       string
	MaxDiscount    string
	UsageLimit     int
	PerUser        int
	Stackable      bool
	ApplicableTo   string
	Brands         []string
	ValidityMonths int
}

var coupons = []seedCoupon{
	{"WELCOME10", "Welcome offer", "percentage", "10", "0", "2000", 0, 1, false, "all", nil, 12},
	{"FLAT500", "Flat 500 off", "fixed_amount", "500", "10000", "0", 1000, 2, true, "all", nil, 6},
	{"FREESHIP", "Free shipping", "free_shipping", "0", "5000", "0", 0, 0, true, "all", nil, 12},
	{"THINKBIG", "Lenovo festival", "percentage", "15", "20000", "5000", 500, 1, false, "restricted", []string{"Lenovo"}, 3},
}

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

const insertProductSQL = `
INSERT INTO products (category_id, title, brand, sku, price, mrp, gst_percent, discount_percent, in_stock, stock_qty)
SELECT $1, $2, $3, $4, $5, NULLIF($6::numeric, 0), $7, $8, $9 > 0, $9
WHERE NOT EXISTS (SELECT 1 FROM products WHERE sku = $4)`

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding products", slog.Int("count", len(products)))

	for _, p := range products {
		price := decimal.RequireFromString(p.Price)
		mrp := decimal.RequireFromString(p.MRP)

		tag, err := pool.Exec(ctx, insertProductSQL,
			p.CategoryID, p.Title, p.Brand, p.SKU,
			price, mrp, p.GSTPercent, p.DiscountPercent, p.StockQty,
		)
		if err != nil {
			return errors.Wrapf(err, "insert product %s", p.SKU)
		}
		if tag.RowsAffected() > 0 {
			slog.Info("seeded product", slog.String("sku", p.SKU), slog.String("title", p.Title))
		}
	}
	return nil
}

const upsertCouponSQL = `
INSERT INTO coupons (code, name, type, value, min_order_amount, max_discount_amount,
                     valid_from, valid_until, usage_limit, usage_limit_per_user,
                     stackable, is_active, applicable_to, applicable_brands)
VALUES ($1, $2, $3, $4, NULLIF($5::numeric, 0), NULLIF($6::numeric, 0),
        $7, $8, NULLIF($9, 0), $10, $11, TRUE, $12, $13)
ON CONFLICT (code) DO UPDATE SET
    name = EXCLUDED.name, type = EXCLUDED.type, value = EXCLUDED.value,
    valid_until = EXCLUDED.valid_until, is_active = TRUE`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding coupons", slog.Int("count", len(coupons)))

	now := time.Now()
	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.Code, c.Name, c.Type,
			decimal.RequireFromString(c.Value),
			decimal.RequireFromString(c.MinOrder),
			decimal.RequireFromString(c.MaxDiscount),
			now, now.AddDate(0, c.ValidityMonths, 0),
			c.UsageLimit, c.PerUser, c.Stackable,
			c.ApplicableTo, c.Brands,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("seeded coupon", slog.String("code", c.Code), slog.String("name", c.Name))
	}
	return nil
}
