package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lapmart/lapmart-backend/internal/domain/catalog"
	"github.com/lapmart/lapmart-backend/internal/domain/identity"
	"github.com/lapmart/lapmart-backend/internal/domain/pricing"
)

type mockRepo struct {
	carts     map[int64]*Cart
	items     map[int64]*Item
	discounts map[int64][]AppliedDiscount
	nextCart  int64
	nextItem  int64

	failCreateOnce bool
	onCreateRace   func()
	expired        int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		carts:     map[int64]*Cart{},
		items:     map[int64]*Item{},
		discounts: map[int64][]AppliedDiscount{},
	}
}

func (m *mockRepo) FindActive(_ context.Context, id identity.Identity) (*Cart, error) {
	for _, c := range m.carts {
		if c.Status == StatusActive && c.Identity == id {
			return c, nil
		}
	}
	return nil, ErrCartNotFound
}

func (m *mockRepo) GetByID(_ context.Context, cartID int64) (*Cart, error) {
	c, ok := m.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return c, nil
}

func (m *mockRepo) Create(_ context.Context, id identity.Identity, expiresAt time.Time) (*Cart, error) {
	if m.failCreateOnce {
		m.failCreateOnce = false
		if m.onCreateRace != nil {
			m.onCreateRace()
		}
		return nil, ErrCartExists
	}
	m.nextCart++
	c := &Cart{
		ID:        m.nextCart,
		Identity:  id,
		Status:    StatusActive,
		Currency:  "INR",
		ExpiresAt: expiresAt,
	}
	m.carts[c.ID] = c
	return c, nil
}

func (m *mockRepo) SetStatus(_ context.Context, cartID int64, status Status) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	c.Status = status
	return nil
}

func (m *mockRepo) ExtendExpiry(_ context.Context, cartID int64, expiresAt time.Time) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	c.ExpiresAt = expiresAt
	return nil
}

func (m *mockRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, c := range m.carts {
		if c.Status == StatusActive && c.ExpiresAt.Before(now) {
			c.Status = StatusExpired
			n++
		}
	}
	m.expired += n
	return n, nil
}

func (m *mockRepo) ListItems(_ context.Context, cartID int64) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.CartID == cartID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *mockRepo) GetItem(_ context.Context, itemID, cartID int64) (*Item, error) {
	it, ok := m.items[itemID]
	if !ok || it.CartID != cartID {
		return nil, ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockRepo) MergeItem(_ context.Context, item *Item) (*Item, error) {
	for _, it := range m.items {
		if it.CartID == item.CartID && it.ProductID == item.ProductID && variantEq(it.VariantID, item.VariantID) {
			it.Quantity += item.Quantity
			cp := *it
			return &cp, nil
		}
	}
	m.nextItem++
	item.ID = m.nextItem
	cp := *item
	m.items[item.ID] = &cp
	out := cp
	return &out, nil
}

func variantEq(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *mockRepo) UpdateItemQuantity(_ context.Context, itemID int64, qty int, line pricing.Line) error {
	it, ok := m.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	it.Quantity = qty
	it.LineTotal = line.Total
	it.LineDiscount = line.Discount
	it.LineTax = line.Tax
	return nil
}

func (m *mockRepo) DeleteItem(_ context.Context, itemID, cartID int64) error {
	it, ok := m.items[itemID]
	if !ok || it.CartID != cartID {
		return ErrItemNotFound
	}
	delete(m.items, itemID)
	return nil
}

func (m *mockRepo) DeleteAllItems(_ context.Context, cartID int64) error {
	for id, it := range m.items {
		if it.CartID == cartID {
			delete(m.items, id)
		}
	}
	return nil
}

func (m *mockRepo) ListAppliedDiscounts(_ context.Context, cartID int64) ([]AppliedDiscount, error) {
	return m.discounts[cartID], nil
}

func (m *mockRepo) UpdateTotals(_ context.Context, cartID int64, t pricing.Totals) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrCartNotFound
	}
	c.Subtotal = t.Subtotal
	c.TaxAmount = t.TaxAmount
	c.DiscountAmount = t.DiscountAmount
	c.ShippingAmount = t.ShippingAmount
	c.TotalAmount = t.TotalAmount
	c.ItemCount = t.ItemCount
	return nil
}

type mockCatalog struct {
	products map[int64]*catalog.Product
	variants map[int64]*catalog.Variant
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetVariant(_ context.Context, id int64) (*catalog.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return v, nil
}

func (m *mockCatalog) GetProductsMeta(_ context.Context, _ []int64) ([]catalog.ProductMeta, error) {
	return nil, nil
}

func (m *mockCatalog) DecrementStock(_ context.Context, _ int64, _ int) (bool, error) {
	return true, nil
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService() (*Service, *mockRepo, *mockCatalog) {
	repo := newMockRepo()
	cat := &mockCatalog{
		products: map[int64]*catalog.Product{
			101: {ID: 101, Title: "ThinkPad T480", Brand: "lenovo", Price: d("24999"), MRP: d("32999"), GSTPercent: 18, StockQty: 5},
			102: {ID: 102, Title: "Latitude 7490", Brand: "dell", Price: d("1000"), GSTPercent: 18, StockQty: 3},
		},
		variants: map[int64]*catalog.Variant{
			9: {ID: 9, ProductID: 101, Price: d("27999"), MRP: d("34999"), GSTPercent: 18, StockQty: 2},
		},
	}
	svc := NewService(repo, cat, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, repo, cat
}

func TestGetOrCreate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	t.Run("user cart gets 30 day ttl", func(t *testing.T) {
		c, err := svc.GetOrCreate(ctx, identity.User(42))
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(UserTTL), c.ExpiresAt)
	})

	t.Run("guest cart gets 7 day ttl", func(t *testing.T) {
		c, err := svc.GetOrCreate(ctx, identity.Guest("s-1"))
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(GuestTTL), c.ExpiresAt)
	})

	t.Run("second call returns the same cart", func(t *testing.T) {
		a, err := svc.GetOrCreate(ctx, identity.User(42))
		require.NoError(t, err)
		b, err := svc.GetOrCreate(ctx, identity.User(42))
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)
	})
}

func TestGetOrCreateLostRace(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	// A concurrent request inserts the cart between our miss and our create:
	// the unique index rejects ours, and the re-read lands on the winner.
	var winnerID int64
	repo.failCreateOnce = true
	repo.onCreateRace = func() {
		winner, err := repo.Create(ctx, identity.User(7), testNow.Add(UserTTL))
		require.NoError(t, err)
		winnerID = winner.ID
	}

	c, err := svc.GetOrCreate(ctx, identity.User(7))
	require.NoError(t, err)
	assert.Equal(t, winnerID, c.ID)
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	svc, repo, cat := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	det, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 101, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, det.Items, 1)

	it := det.Items[0]
	assert.True(t, it.UnitPrice.Equal(d("24999")))
	// 24999 vs 32999 MRP derives a 24% listing discount.
	assert.Equal(t, 24, it.UnitDiscountPercent)

	// A later catalog price change must not ripple into the cart.
	cat.products[101].Price = d("19999")
	det, err = svc.Get(ctx, uid)
	require.NoError(t, err)
	assert.True(t, det.Items[0].UnitPrice.Equal(d("24999")), "snapshot must be frozen")
	_ = repo
}

func TestAddItemMergesDuplicateLine(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	_, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 102, Quantity: 1})
	require.NoError(t, err)
	det, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 102, Quantity: 2})
	require.NoError(t, err)

	require.Len(t, det.Items, 1, "same product must merge into one line")
	assert.Equal(t, 3, det.Items[0].Quantity)
	assert.True(t, det.Items[0].LineTotal.Equal(d("3000")))
	assert.Equal(t, 3, det.Cart.ItemCount)
}

func TestAddItemVariantMismatch(t *testing.T) {
	svc, _, _ := newTestService()
	vid := int64(9)

	_, err := svc.AddItem(context.Background(), identity.User(42), AddItemParams{ProductID: 102, VariantID: &vid, Quantity: 1})
	assert.ErrorIs(t, err, catalog.ErrVariantNotFound)
}

func TestAddItemRejectsZeroQuantity(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.AddItem(context.Background(), identity.User(42), AddItemParams{ProductID: 101, Quantity: 0})
	assert.Error(t, err)
}

func TestAddItemExtendsExpiry(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	c, err := svc.GetOrCreate(ctx, uid)
	require.NoError(t, err)
	c.ExpiresAt = testNow.Add(time.Hour) // nearly stale

	_, err = svc.AddItem(ctx, uid, AddItemParams{ProductID: 101, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(UserTTL), repo.carts[c.ID].ExpiresAt)
}

func TestUpdateItemQuantity(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	det, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 102, Quantity: 2})
	require.NoError(t, err)
	itemID := det.Items[0].ID

	t.Run("reprices from snapshot", func(t *testing.T) {
		det, err := svc.UpdateItemQuantity(ctx, uid, itemID, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, det.Items[0].Quantity)
		assert.True(t, det.Items[0].LineTotal.Equal(d("5000")))
		assert.True(t, det.Cart.TotalAmount.Equal(d("5900")), "total = %s", det.Cart.TotalAmount)
	})

	t.Run("zero removes the line", func(t *testing.T) {
		det, err := svc.UpdateItemQuantity(ctx, uid, itemID, 0)
		require.NoError(t, err)
		assert.Empty(t, det.Items)
		assert.True(t, det.Cart.TotalAmount.IsZero())
	})
}

func TestClear(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	uid := identity.Guest("s-9")

	_, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 101, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, uid, AddItemParams{ProductID: 102, Quantity: 2})
	require.NoError(t, err)

	det, err := svc.Clear(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, det.Items)
	assert.True(t, det.Cart.Subtotal.IsZero())
	assert.Equal(t, 0, det.Cart.ItemCount)
}

func TestRecomputeTotalsWithCoupons(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	det, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 102, Quantity: 2})
	require.NoError(t, err)
	cartID := det.Cart.ID

	repo.discounts[cartID] = []AppliedDiscount{
		{CouponID: 1, Code: "WELCOME10", DiscountAmount: d("200")},
	}
	require.NoError(t, svc.RecomputeTotals(ctx, cartID))

	c := repo.carts[cartID]
	assert.True(t, c.Subtotal.Equal(d("2000")))
	assert.True(t, c.TaxAmount.Equal(d("360")))
	assert.True(t, c.DiscountAmount.Equal(d("200")))
	assert.True(t, c.TotalAmount.Equal(d("2160")), "total = %s", c.TotalAmount)
}

func TestGetCartView(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	uid := identity.User(42)

	det, err := svc.AddItem(ctx, uid, AddItemParams{ProductID: 101, Quantity: 2})
	require.NoError(t, err)

	view, err := svc.GetCartView(ctx, det.Cart.ID)
	require.NoError(t, err)
	assert.Equal(t, det.Cart.ID, view.ID)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, int64(101), view.Lines[0].ProductID)
	assert.Equal(t, 2, view.Lines[0].Quantity)
}

func TestExpireStale(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	c, err := svc.GetOrCreate(ctx, identity.Guest("old"))
	require.NoError(t, err)
	repo.carts[c.ID].ExpiresAt = testNow.Add(-time.Hour)

	fresh, err := svc.GetOrCreate(ctx, identity.Guest("fresh"))
	require.NoError(t, err)

	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, StatusExpired, repo.carts[c.ID].Status)
	assert.Equal(t, StatusActive, repo.carts[fresh.ID].Status)
}
