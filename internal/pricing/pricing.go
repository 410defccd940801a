// Package pricing holds the pure money functions used by the cart and checkout.
// All amounts are shopspring decimals rounded half-to-even at the cent.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced cart line.
type Line struct {
	ProductID      int64
	Title          string
	SKU            string
	Quantity       int
	BasePrice      decimal.Decimal
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	SavingsPerUnit decimal.Decimal
	SavingsPercent int64
	TierLabel      string
}

// Savings is the line's discount against the base price.
func (l Line) Savings() decimal.Decimal {
	return l.SavingsPerUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals summarises a set of lines.
type Totals struct {
	Subtotal         decimal.Decimal
	OriginalSubtotal decimal.Decimal
	TotalSavings     decimal.Decimal
	ItemCount        int
}

// UnitPrice picks the tier with the greatest minimum that covers qty,
// falling back to base.
func UnitPrice(base decimal.Decimal, tiers []domain.TieredPrice, qty int) (decimal.Decimal, *domain.TieredPrice) {
	var best *domain.TieredPrice
	for i := range tiers {
		t := &tiers[i]
		if !t.Covers(qty) {
			continue
		}
		if best == nil || t.MinQuantity > best.MinQuantity ||
			(t.MinQuantity == best.MinQuantity && t.UnitPrice.LessThan(best.UnitPrice)) {
			best = t
		}
	}
	if best == nil {
		return base, nil
	}
	return best.UnitPrice, best
}

// PriceLine prices qty units of p at its tiered unit price.
func PriceLine(p domain.Product, qty int) Line {
	base := p.BasePrice()
	unit, tier := UnitPrice(base, p.Tiers, qty)

	l := Line{
		ProductID: p.ID,
		Title:     p.Title,
		SKU:       p.SKU,
		Quantity:  qty,
		BasePrice: base,
		UnitPrice: unit,
		LineTotal: unit.Mul(decimal.NewFromInt(int64(qty))).RoundBank(2),
	}
	if tier != nil {
		l.TierLabel = tier.Label
	}
	if base.IsPositive() && unit.LessThan(base) {
		l.SavingsPerUnit = base.Sub(unit)
		l.SavingsPercent = l.SavingsPerUnit.Div(base).Mul(hundred).RoundBank(0).IntPart()
	}
	return l
}

// Summarize adds up lines. The original subtotal is priced at base price,
// so savings go negative when a tier costs more than the base.
func Summarize(lines []Line) Totals {
	t := Totals{
		Subtotal:         decimal.Zero,
		OriginalSubtotal: decimal.Zero,
	}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.LineTotal)
		t.OriginalSubtotal = t.OriginalSubtotal.Add(l.BasePrice.Mul(decimal.NewFromInt(int64(l.Quantity))).RoundBank(2))
		t.ItemCount += l.Quantity
	}
	t.TotalSavings = t.OriginalSubtotal.Sub(t.Subtotal)
	return t
}
