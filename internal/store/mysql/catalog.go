package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

// CreateProduct inserts a product with its tiers. Catalog management lives
// outside this service; this exists for seeding and tests.
func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	now := s.now()
	m := productModel{
		Title:          p.Title,
		SKU:            p.SKU,
		Price:          nullDecimal(p.Price),
		StockQuantity:  p.StockQuantity,
		TrackInventory: p.TrackInventory,
		AllowBackorder: p.AllowBackorder,
		MinimumOrder:   p.MinimumOrder,
		IsActive:       p.IsActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, t := range p.Tiers {
		tier := tieredPriceModel{MinQuantity: t.MinQuantity, UnitPrice: t.UnitPrice, Label: t.Label}
		if t.MaxQuantity != nil {
			tier.MaxQuantity = sql.NullInt64{Int64: int64(*t.MaxQuantity), Valid: true}
		}
		m.Tiers = append(m.Tiers, tier)
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	p.ID = m.ID
	return nil
}

// CreatePromo inserts a promo code, upper-casing the code.
func (s *Store) CreatePromo(ctx context.Context, p *domain.PromoCode) error {
	m := promoModel{
		Code:            domain.NormalizeCode(p.Code),
		DiscountType:    string(p.Type),
		DiscountValue:   p.Value,
		MaximumDiscount: nullDecimal(p.MaximumDiscount),
		MinimumOrder:    p.MinimumOrder,
		UsageCount:      p.UsageCount,
		FirstOrderOnly:  p.FirstOrderOnly,
		IsActive:        p.IsActive,
		ValidFrom:       p.ValidFrom,
		ValidUntil:      nullTime(p.ValidUntil),
	}
	if p.UsageLimit != nil {
		m.UsageLimit = sql.NullInt64{Int64: int64(*p.UsageLimit), Valid: true}
	}
	if p.PerCustomerLimit != nil {
		m.PerCustomerLimit = sql.NullInt64{Int64: int64(*p.PerCustomerLimit), Valid: true}
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create promo: %w", err)
	}
	p.ID = m.ID
	p.Code = m.Code
	return nil
}
