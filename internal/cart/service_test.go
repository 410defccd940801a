package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/memory"
)

const (
	kraftBox   = int64(1)
	polyMailer = int64(2)
	tape       = int64(3)
	rigidBox   = int64(4)
)

func setupService(t *testing.T) (*Service, *memory.MemoryStore) {
	t.Helper()
	s := memory.NewMemoryStore()
	memory.SeedDemo(s)
	return NewService(s, s, pricing.NewEngine(config.DefaultPricing())), s
}

func TestAdd_RaisesToMinimumWithWarning(t *testing.T) {
	svc, _ := setupService(t)

	res, err := svc.Add(context.Background(), "sess", kraftBox, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Item.Quantity)
	assert.Equal(t, "Minimum order quantity is 25 items. Quantity adjusted.", res.Warning)
}

func TestAdd_MergesLinesAndClamps(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", tape, 0)
	require.NoError(t, err)
	res, err := svc.Add(ctx, "sess", tape, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Item.Quantity, "zero is clamped to one, then merged")

	c, err := svc.Get(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, res.TotalItems)
}

func TestAdd_RejectsUnpurchasable(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Add(context.Background(), "sess", rigidBox, 1)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "This product is not available for purchase.", ve.Fields["product_id"])

	_, err = svc.Add(context.Background(), "sess", 999, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdd_StockIncludesExistingLine(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", polyMailer, 10)
	require.NoError(t, err)

	_, err = svc.Add(ctx, "sess", polyMailer, 3)
	var se *domain.InsufficientStockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 13, se.Requested)
	assert.Equal(t, 12, se.Available)
	assert.Equal(t, "Sorry, only 12 items available in stock.", se.Error())
}

func TestAdd_BackorderIgnoresStock(t *testing.T) {
	svc, _ := setupService(t)
	res, err := svc.Add(context.Background(), "sess", tape, 500)
	require.NoError(t, err)
	assert.Equal(t, 500, res.Item.Quantity)
}

func TestSetQuantity(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	added, err := svc.Add(ctx, "sess", polyMailer, 2)
	require.NoError(t, err)
	id := added.Item.ID

	res, err := svc.SetQuantity(ctx, "sess", id, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Item.Quantity)

	_, err = svc.SetQuantity(ctx, "sess", id, 13)
	var se *domain.InsufficientStockError
	assert.ErrorAs(t, err, &se)

	_, err = svc.SetQuantity(ctx, "sess", id, 10000)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	res, err = svc.SetQuantity(ctx, "sess", id, 0)
	require.NoError(t, err)
	assert.True(t, res.Removed)

	_, err = svc.SetQuantity(ctx, "sess", id, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustAndRemove(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	added, err := svc.Add(ctx, "sess", tape, 3)
	require.NoError(t, err)
	id := added.Item.ID

	res, err := svc.Adjust(ctx, "sess", id, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Item.Quantity)

	res, err = svc.Adjust(ctx, "sess", id, -5)
	require.NoError(t, err)
	assert.True(t, res.Removed)

	added, err = svc.Add(ctx, "sess", tape, 1)
	require.NoError(t, err)
	res, err = svc.Remove(ctx, "sess", added.Item.ID)
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Equal(t, 0, res.TotalItems)
}

func TestSessionsCannotTouchOtherCarts(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	added, err := svc.Add(ctx, "owner", tape, 1)
	require.NoError(t, err)

	_, err = svc.Remove(ctx, "intruder", added.Item.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestView_PricesAtTier(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	_, err := svc.Add(ctx, "sess", kraftBox, 150)
	require.NoError(t, err)

	v, err := svc.View(ctx, "sess")
	require.NoError(t, err)
	require.Len(t, v.Lines, 1)
	assert.True(t, decimal.RequireFromString("0.80").Equal(v.Lines[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("120.00").Equal(v.Totals.Subtotal))
	assert.True(t, decimal.RequireFromString("30.00").Equal(v.Totals.TotalSavings))
	assert.Equal(t, "Bulk", v.Lines[0].TierLabel)
	require.Len(t, v.ShippingMethods, 2)
	assert.True(t, decimal.RequireFromString("25.00").Equal(v.ShippingMethods[0].Cost))
}
