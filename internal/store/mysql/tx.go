package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

type sqlTx struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Tx = (*sqlTx)(nil)

func (tx *sqlTx) ReserveStock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve %d: quantity must be positive", productID)
	}
	db := tx.db.WithContext(ctx)
	res := db.Model(&productModel{}).
		Where("id = ? AND track_inventory = ? AND (allow_backorder = ? OR stock_quantity >= ?)", productID, true, true, qty).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"updated_at":     tx.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("reserve stock: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var m productModel
	if err := db.Select("id", "title", "stock_quantity", "track_inventory").First(&m, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		return fmt.Errorf("reload stock: %w", err)
	}
	if !m.TrackInventory {
		return nil
	}
	return &domain.InsufficientStockError{ProductID: productID, Title: m.Title, Requested: qty, Available: m.StockQuantity}
}

func (tx *sqlTx) RestockProduct(ctx context.Context, productID int64, qty int) error {
	err := tx.db.WithContext(ctx).Model(&productModel{}).
		Where("id = ? AND track_inventory = ?", productID, true).
		Updates(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
			"updated_at":     tx.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("restock: %w", err)
	}
	return nil
}

func (tx *sqlTx) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = tx.now()
	}
	m := fromDomainOrder(order)
	if err := tx.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("order %s: %w", order.OrderNumber, store.ErrDuplicate)
		}
		return fmt.Errorf("create order: %w", err)
	}
	order.ID = m.ID
	order.UpdatedAt = m.UpdatedAt
	for i := range order.Items {
		order.Items[i].ID = m.Items[i].ID
	}
	return nil
}

func (tx *sqlTx) IncrementPromoUsage(ctx context.Context, promoID int64) error {
	res := tx.db.WithContext(ctx).Model(&promoModel{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", promoID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment promo usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var m promoModel
		if err := tx.db.WithContext(ctx).Select("id", "code").First(&m, promoID).Error; err != nil {
			return fmt.Errorf("promo %d: %w", promoID, store.ErrNotFound)
		}
		return &domain.PromoError{Code: m.Code, Reason: domain.ReasonPromoUsageLimit}
	}
	return nil
}

func (tx *sqlTx) ClearCart(ctx context.Context, cartID int64) error {
	if err := tx.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&cartItemModel{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (tx *sqlTx) GetOrderForUpdate(ctx context.Context, number string) (*domain.Order, error) {
	var m orderModel
	err := tx.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("order_number = ?", number).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return toDomainOrder(&m), nil
}

func (tx *sqlTx) UpdateOrderStatus(ctx context.Context, number string, expected domain.OrderStatus, u domain.StatusUpdate) error {
	res := tx.db.WithContext(ctx).Model(&orderModel{}).
		Where("order_number = ? AND status = ?", number, string(expected)).
		Updates(map[string]interface{}{
			"status":          string(u.Status),
			"payment_status":  string(u.PaymentStatus),
			"tracking_number": u.TrackingNumber,
			"shipped_at":      nullTime(u.ShippedAt),
			"delivered_at":    nullTime(u.DeliveredAt),
			"updated_at":      u.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrConditionFailed
	}
	return nil
}
