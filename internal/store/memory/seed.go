package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

// SeedDemo loads a small catalog for local runs.
func SeedDemo(s *MemoryStore) {
	price := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
	max499 := 499

	s.PutProduct(domain.Product{
		ID: 1, Title: "Brown Kraft Mailer Box", SKU: "BOX-KRAFT-S", Price: price("1.00"),
		StockQuantity: 5000, TrackInventory: true, MinimumOrder: 25, IsActive: true,
		Tiers: []domain.TieredPrice{
			{ProductID: 1, MinQuantity: 100, MaxQuantity: &max499, UnitPrice: decimal.RequireFromString("0.80"), Label: "Bulk"},
			{ProductID: 1, MinQuantity: 500, UnitPrice: decimal.RequireFromString("0.65"), Label: "Wholesale"},
		},
	})
	s.PutProduct(domain.Product{
		ID: 2, Title: "Poly Bubble Mailer", SKU: "MAIL-POLY-M", Price: price("0.45"),
		StockQuantity: 12, TrackInventory: true, MinimumOrder: 1, IsActive: true,
	})
	s.PutProduct(domain.Product{
		ID: 3, Title: "Custom Printed Tape", SKU: "TAPE-CUSTOM", Price: price("4.20"),
		TrackInventory: true, AllowBackorder: true, MinimumOrder: 1, IsActive: true,
	})
	s.PutProduct(domain.Product{
		ID: 4, Title: "Custom Rigid Box", SKU: "BOX-RIGID-Q", MinimumOrder: 1, IsActive: true,
	})

	limit := 100
	s.PutPromo(domain.PromoCode{
		Code: "SAVE10", Type: domain.DiscountPercentage, Value: decimal.NewFromInt(10),
		MinimumOrder: decimal.NewFromInt(50), UsageLimit: &limit, IsActive: true,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	s.PutPromo(domain.PromoCode{
		Code: "SHIPFREE", Type: domain.DiscountFreeShipping, IsActive: true, FirstOrderOnly: true,
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}
