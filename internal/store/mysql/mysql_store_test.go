package mysql

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

func setupTestDB(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("skipping mysql integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcmysql.Run(ctx,
		"mysql:8.0.36",
		tcmysql.WithDatabase("checkout"),
		tcmysql.WithUsername("checkout"),
		tcmysql.WithPassword("checkout"),
	)
	t.Cleanup(func() {
		if container != nil {
			require.NoError(t, container.Terminate(context.Background()))
		}
	})
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := Open(ctx, config.MySQL{DSN: dsn, MaxOpenConns: 20, Migrate: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newProduct(t *testing.T, s *Store, stock int) int64 {
	t.Helper()
	price := decimal.RequireFromString("1.00")
	max := 499
	p := &domain.Product{
		Title: "Kraft mailer", SKU: "BOX-1", Price: &price, StockQuantity: stock,
		TrackInventory: true, MinimumOrder: 1, IsActive: true,
		Tiers: []domain.TieredPrice{{MinQuantity: 100, MaxQuantity: &max, UnitPrice: decimal.RequireFromString("0.80"), Label: "Bulk"}},
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p.ID
}

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("user:pass@tcp(db:3306)/checkout")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")

	_, err = NormalizeDSN("not a dsn")
	assert.Error(t, err)
}

func TestStore_ProductRoundTrip(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	id := newProduct(t, s, 10)

	p, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kraft mailer", p.Title)
	require.Len(t, p.Tiers, 1)
	assert.Equal(t, 499, *p.Tiers[0].MaxQuantity)

	_, err = s.GetProduct(ctx, id+1000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ConcurrentLastUnit(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	id := newProduct(t, s, 1)

	var ok, short int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ReserveStock(ctx, id, 1)
			var se *domain.InsufficientStockError
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorAs(t, err, &se):
				atomic.AddInt32(&short, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(1), short)
	p, err := s.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockQuantity)
}

func TestStore_CartUpsertMerges(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	id := newProduct(t, s, 100)

	cart, err := s.GetOrCreateCart(ctx, "sess-1")
	require.NoError(t, err)
	_, err = s.AddCartItem(ctx, cart.ID, id, 2)
	require.NoError(t, err)
	item, err := s.AddCartItem(ctx, cart.ID, id, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)

	again, err := s.GetOrCreateCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)
	require.Len(t, again.Items, 1)
	assert.Equal(t, "Kraft mailer", again.Items[0].Product.Title)

	require.NoError(t, s.SetCartItemQuantity(ctx, cart.ID, item.ID, 5))
	require.NoError(t, s.DeleteCartItem(ctx, cart.ID, item.ID))
	assert.ErrorIs(t, s.DeleteCartItem(ctx, cart.ID, item.ID), store.ErrNotFound)
}

func TestStore_CommitRollsBackOnFailure(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	a := newProduct(t, s, 5)
	b := newProduct(t, s, 1)

	err := s.WithProductLocks(ctx, []int64{b, a}, func(tx store.Tx, locked map[int64]domain.Product) error {
		require.Len(t, locked, 2)
		require.NoError(t, tx.ReserveStock(ctx, a, 2))
		require.NoError(t, tx.CreateOrder(ctx, sampleOrder("ORD-ROLLBACK", "key-rb")))
		return tx.ReserveStock(ctx, b, 2)
	})
	var se *domain.InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Available)

	p, err := s.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)
	o, err := s.GetOrder(ctx, "ORD-ROLLBACK")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestStore_OppositeLockOrderDoesNotDeadlock(t *testing.T) {
	s := setupTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := newProduct(t, s, 100)
	b := newProduct(t, s, 12)

	var ok, short int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ids := []int64{a, b}
		if i%2 == 1 {
			ids = []int64{b, a}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithProductLocks(ctx, ids, func(tx store.Tx, _ map[int64]domain.Product) error {
				for _, id := range ids {
					if err := tx.ReserveStock(ctx, id, 1); err != nil {
						return err
					}
				}
				return nil
			})
			var se *domain.InsufficientStockError
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorAs(t, err, &se):
				atomic.AddInt32(&short, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(12), ok)
	assert.Equal(t, int32(8), short)
	pa, err := s.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 88, pa.StockQuantity)
	pb, err := s.GetProduct(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 0, pb.StockQuantity)
}

func TestStore_PromoUsageLimitUnderConcurrency(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	limit := 2
	promo := &domain.PromoCode{
		Code: "save10", Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10),
		UsageLimit: &limit, IsActive: true, ValidFrom: time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.CreatePromo(ctx, promo))

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithProductLocks(ctx, nil, func(tx store.Tx, _ map[int64]domain.Product) error {
				return tx.IncrementPromoUsage(ctx, promo.ID)
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), ok)
	found, err := s.FindPromo(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 2, found.UsageCount)
}

func TestStore_OrderLifecycle(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	id := newProduct(t, s, 10)

	order := sampleOrder("ORD-1", "key-1")
	order.PaymentID = "pi_123"
	order.PromoCode = "SAVE10"
	order.Items = []domain.OrderItem{{ProductID: id, ProductTitle: "Kraft mailer", Quantity: 2, UnitPrice: decimal.RequireFromString("1.00"), TotalPrice: decimal.RequireFromString("2.00")}}
	require.NoError(t, s.WithProductLocks(ctx, []int64{id}, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.CreateOrder(ctx, order)
	}))
	assert.NotZero(t, order.ID)

	dup := sampleOrder("ORD-2", "key-1")
	err := s.WithProductLocks(ctx, nil, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.CreateOrder(ctx, dup)
	})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	byPayment, err := s.FindOrderByPaymentID(ctx, "pi_123")
	require.NoError(t, err)
	require.NotNil(t, byPayment)
	assert.Len(t, byPayment.Items, 1)
	assert.Equal(t, "Toronto", byPayment.Shipping.City)

	h, err := s.CustomerHistory(ctx, "BUYER@example.com", "save10")
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerHistory{CodeUses: 1, Orders: 1}, h)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.WithProductLocks(ctx, nil, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.UpdateOrderStatus(ctx, "ORD-1", domain.OrderPending, domain.StatusUpdate{
			Status: domain.OrderConfirmed, PaymentStatus: domain.PaymentPaid, UpdatedAt: now,
		})
	}))
	err = s.WithProductLocks(ctx, nil, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.UpdateOrderStatus(ctx, "ORD-1", domain.OrderPending, domain.StatusUpdate{Status: domain.OrderCancelled, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	assert.ErrorIs(t, s.UpdatePaymentStatus(ctx, "ORD-1", domain.PaymentPending, domain.PaymentFailed), store.ErrConditionFailed)
	require.NoError(t, s.MarkNotified(ctx, "ORD-1", now))
	assert.ErrorIs(t, s.MarkNotified(ctx, "ORD-1", now), store.ErrConditionFailed)
}

func sampleOrder(number, key string) *domain.Order {
	return &domain.Order{
		OrderNumber:    number,
		IdempotencyKey: key,
		Email:          "buyer@example.com",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Phone:          "4165550100",
		Shipping: domain.Address{
			Line1: "1 King St W", City: "Toronto", Region: "ON", PostalCode: "M5H 1A1", Country: "Canada",
		},
		ShippingMethod:        "Standard Shipping",
		BillingSameAsShipping: true,
		Subtotal:              decimal.RequireFromString("2.00"),
		Total:                 decimal.RequireFromString("19.21"),
		Status:                domain.OrderPending,
		PaymentStatus:         domain.PaymentPending,
	}
}
