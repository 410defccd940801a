package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

func setupStore(t *testing.T) *MemoryStore {
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func tracked(stock int) domain.Product {
	price := decimal.RequireFromString("2.50")
	return domain.Product{Title: "Mailer", Price: &price, StockQuantity: stock, TrackInventory: true, IsActive: true}
}

func TestMemoryStore_ReserveStock(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := s.PutProduct(tracked(5))

	require.NoError(t, s.ReserveStock(ctx, id, 3))
	assert.Equal(t, 2, s.Stock(id))

	err := s.ReserveStock(ctx, id, 3)
	var se *domain.InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Available)
	assert.Equal(t, 3, se.Requested)
	assert.Equal(t, 2, s.Stock(id))
}

func TestMemoryStore_ReserveStockUntrackedAndBackorder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	untracked := tracked(0)
	untracked.TrackInventory = false
	uid := s.PutProduct(untracked)
	require.NoError(t, s.ReserveStock(ctx, uid, 50))
	assert.Equal(t, 0, s.Stock(uid))

	backorder := tracked(1)
	backorder.AllowBackorder = true
	bid := s.PutProduct(backorder)
	require.NoError(t, s.ReserveStock(ctx, bid, 4))
	assert.Equal(t, -3, s.Stock(bid))
}

func TestMemoryStore_ConcurrentReservationsNeverOversell(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := s.PutProduct(tracked(10))

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ReserveStock(ctx, id, 1); err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok)
	assert.Equal(t, 0, s.Stock(id))
}

func TestMemoryStore_FailedTransactionLeavesNoTrace(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := s.PutProduct(tracked(5))
	b := s.PutProduct(tracked(1))
	cart, err := s.GetOrCreateCart(ctx, "sess")
	require.NoError(t, err)
	_, err = s.AddCartItem(ctx, cart.ID, a, 2)
	require.NoError(t, err)

	err = s.WithProductLocks(ctx, []int64{b, a}, func(tx store.Tx, locked map[int64]domain.Product) error {
		require.Len(t, locked, 2)
		require.NoError(t, tx.ReserveStock(ctx, a, 2))
		require.NoError(t, tx.CreateOrder(ctx, &domain.Order{OrderNumber: "ORD-1", IdempotencyKey: "k1"}))
		require.NoError(t, tx.ClearCart(ctx, cart.ID))
		return tx.ReserveStock(ctx, b, 2)
	})
	var se *domain.InsufficientStockError
	require.ErrorAs(t, err, &se)

	assert.Equal(t, 5, s.Stock(a))
	assert.Equal(t, 0, s.OrderCount())
	cart, err = s.GetOrCreateCart(ctx, "sess")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestMemoryStore_PromoUsageLimit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	limit := 3
	promoID := s.PutPromo(domain.PromoCode{Code: "save10", Type: domain.DiscountPercentage, UsageLimit: &limit, IsActive: true})

	var ok int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithProductLocks(ctx, nil, func(tx store.Tx, _ map[int64]domain.Product) error {
				return tx.IncrementPromoUsage(ctx, promoID)
			})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok)
	assert.Equal(t, 3, s.PromoUsage("SAVE10"))
}

func TestMemoryStore_CartMergesLines(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := s.PutProduct(tracked(100))
	cart, err := s.GetOrCreateCart(ctx, "sess")
	require.NoError(t, err)

	first, err := s.AddCartItem(ctx, cart.ID, id, 2)
	require.NoError(t, err)
	second, err := s.AddCartItem(ctx, cart.ID, id, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	require.NoError(t, s.SetCartItemQuantity(ctx, cart.ID, first.ID, 7))
	cart, err = s.GetOrCreateCart(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 7, cart.Items[0].Quantity)

	require.NoError(t, s.DeleteCartItem(ctx, cart.ID, first.ID))
	err = s.DeleteCartItem(ctx, cart.ID, first.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestMemoryStore_OrderUniquenessAndConditionalUpdates(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	id := s.PutProduct(tracked(10))

	create := func(number, key, payment string) error {
		return s.WithProductLocks(ctx, []int64{id}, func(tx store.Tx, _ map[int64]domain.Product) error {
			return tx.CreateOrder(ctx, &domain.Order{
				OrderNumber: number, IdempotencyKey: key, PaymentID: payment, Email: "a@example.com",
				Status: domain.OrderPending, PaymentStatus: domain.PaymentPending, PromoCode: "SAVE10",
			})
		})
	}
	require.NoError(t, create("ORD-1", "k1", "pi_1"))
	assert.ErrorIs(t, create("ORD-2", "k1", ""), store.ErrDuplicate)
	assert.ErrorIs(t, create("ORD-3", "k3", "pi_1"), store.ErrDuplicate)

	o, err := s.FindOrderByPaymentID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "ORD-1", o.OrderNumber)

	h, err := s.CustomerHistory(ctx, "A@example.com", "save10")
	require.NoError(t, err)
	assert.Equal(t, domain.CustomerHistory{CodeUses: 1, Orders: 1}, h)

	require.NoError(t, s.UpdatePaymentStatus(ctx, "ORD-1", domain.PaymentPending, domain.PaymentFailed))
	assert.ErrorIs(t, s.UpdatePaymentStatus(ctx, "ORD-1", domain.PaymentPending, domain.PaymentFailed), store.ErrConditionFailed)

	require.NoError(t, s.MarkNotified(ctx, "ORD-1", s.now()))
	assert.ErrorIs(t, s.MarkNotified(ctx, "ORD-1", s.now()), store.ErrConditionFailed)

	missing, err := s.GetOrder(ctx, "ORD-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
