package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/lapmart/lapmart-backend/internal/domain/cart"
	"github.com/lapmart/lapmart-backend/internal/domain/coupon"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
)

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("lapmart"),
		tcpostgres.WithUsername("lapmart"),
		tcpostgres.WithPassword("lapmart"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (category_id, title, brand, price, mrp, gst_percent, stock_qty)
		VALUES (1, 'ThinkPad T480', 'lenovo', 24999, 32999, 18, 5)
		RETURNING id`).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestCartUniquenessAndMerge(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewCartRepo(pool)
	productID := seedProduct(t, pool)
	uid := identity.User(42)
	exp := time.Now().Add(cart.UserTTL)

	c, err := repo.Create(ctx, uid, exp)
	require.NoError(t, err)

	t.Run("second active cart for the identity is rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, uid, exp)
		assert.ErrorIs(t, err, cart.ErrCartExists)
	})

	t.Run("find active returns the cart", func(t *testing.T) {
		got, err := repo.FindActive(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, uid, got.Identity)
	})

	t.Run("same product merges into one line", func(t *testing.T) {
		item := &cart.Item{
			CartID:         c.ID,
			ProductID:      productID,
			Quantity:       1,
			UnitPrice:      decimal.NewFromInt(24999),
			UnitMRP:        decimal.NewFromInt(32999),
			UnitGSTPercent: 18,
		}
		first, err := repo.MergeItem(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Quantity)

		second, err := repo.MergeItem(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 2, second.Quantity)

		items, err := repo.ListItems(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("converted cart frees the slot", func(t *testing.T) {
		require.NoError(t, repo.SetStatus(ctx, c.ID, cart.StatusConverted))
		_, err := repo.FindActive(ctx, uid)
		assert.ErrorIs(t, err, cart.ErrCartNotFound)

		_, err = repo.Create(ctx, uid, exp)
		assert.NoError(t, err)
	})
}

func seedCoupon(t *testing.T, pool *pgxpool.Pool, code string) int64 {
	t.Helper()
	repo := NewCouponRepo(pool)
	id, err := repo.Create(context.Background(), &coupon.Coupon{
		Code:              code,
		Name:              code,
		Type:              coupon.TypePercentage,
		Value:             decimal.NewFromInt(10),
		ValidFrom:         time.Now().Add(-time.Hour),
		ValidUntil:        time.Now().Add(24 * time.Hour),
		UsageLimitPerUser: 1,
		IsActive:          true,
		ApplicableTo:      "all",
	})
	require.NoError(t, err)
	return id
}

func TestLedgerRecordUsage(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	carts := NewCartRepo(pool)
	applied := NewAppliedCouponRepo(pool)
	ledger := NewLedgerRepo(pool)
	coupons := NewCouponRepo(pool)

	uid := identity.User(7)
	c, err := carts.Create(ctx, uid, time.Now().Add(cart.UserTTL))
	require.NoError(t, err)
	couponID := seedCoupon(t, pool, "WELCOME10")

	require.NoError(t, applied.Upsert(ctx, &coupon.Applied{
		CartID:         c.ID,
		CouponID:       couponID,
		Code:           "WELCOME10",
		Type:           coupon.TypePercentage,
		Value:          decimal.NewFromInt(10),
		DiscountAmount: decimal.NewFromInt(200),
	}))

	require.NoError(t, ledger.RecordUsage(ctx, coupon.UsageRecord{
		CouponID:       couponID,
		Identity:       uid,
		OrderID:        1,
		CartID:         c.ID,
		DiscountAmount: decimal.NewFromInt(200),
		OrderAmount:    decimal.NewFromInt(2160),
		UsedAt:         time.Now(),
	}))

	t.Run("ledger row lands and counter moves", func(t *testing.T) {
		n, err := ledger.CountForIdentity(ctx, couponID, uid)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := coupons.FindByCode(ctx, "WELCOME10")
		require.NoError(t, err)
		assert.Equal(t, 1, got.UsageCount)
	})

	t.Run("cart link is gone", func(t *testing.T) {
		links, err := applied.ListByCart(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, links)
	})

	t.Run("other identity has no usage", func(t *testing.T) {
		n, err := ledger.CountForIdentity(ctx, couponID, identity.Guest("s-1"))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("reconcile reports no drift", func(t *testing.T) {
		fixed, err := coupons.ReconcileUsageCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, fixed)
	})

	t.Run("reconcile repairs a tampered counter", func(t *testing.T) {
		_, err := pool.Exec(ctx, `UPDATE coupons SET usage_count = 99 WHERE id = $1`, couponID)
		require.NoError(t, err)

		fixed, err := coupons.ReconcileUsageCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, fixed)

		got, err := coupons.FindByCode(ctx, "WELCOME10")
		require.NoError(t, err)
		assert.Equal(t, 1, got.UsageCount)
	})

	t.Run("used coupon cannot be deleted", func(t *testing.T) {
		err := coupons.Delete(ctx, couponID)
		assert.ErrorIs(t, err, coupon.ErrCouponInUse)
	})
}

func TestDecrementStockConditional(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()
	repo := NewCatalogRepo(pool)
	productID := seedProduct(t, pool)

	ok, err := repo.DecrementStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only 2 left; asking for 3 must refuse without going negative.
	ok, err = repo.DecrementStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := repo.GetProduct(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.StockQty)
}
