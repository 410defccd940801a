package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a purchasable catalog entry as seen by the checkout pipeline.
// Capability flags are resolved when the product is loaded.
type Product struct {
	ID             int64
	Title          string
	SKU            string
	Price          *decimal.Decimal // nil means quote only
	StockQuantity  int
	TrackInventory bool
	AllowBackorder bool
	MinimumOrder   int
	IsActive       bool
	Tiers          []TieredPrice
	UpdatedAt      time.Time
}

// BasePrice returns the list price, or zero for quote-only products.
func (p Product) BasePrice() decimal.Decimal {
	if p.Price == nil {
		return decimal.Zero
	}
	return *p.Price
}

// Purchasable reports whether the product can be added to a cart at all.
func (p Product) Purchasable() bool {
	return p.IsActive && p.Price != nil && p.Price.IsPositive()
}

// StockLimited reports whether stock is a hard cap for this product.
func (p Product) StockLimited() bool {
	return p.TrackInventory && !p.AllowBackorder
}

// CanFulfil is the advisory stock predicate shared by cart and checkout.
func (p Product) CanFulfil(qty int) bool {
	return !p.StockLimited() || p.StockQuantity >= qty
}

// TieredPrice is a quantity break for a product. MaxQuantity nil is unbounded.
type TieredPrice struct {
	ID          int64
	ProductID   int64
	MinQuantity int
	MaxQuantity *int
	UnitPrice   decimal.Decimal
	Label       string
}

// Covers reports whether qty falls inside the tier range.
func (t TieredPrice) Covers(qty int) bool {
	if qty < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || *t.MaxQuantity >= qty
}
