package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

const (
	MethodStandard = "standard"
	MethodExpress  = "express"
)

// ShippingMethod is one selectable delivery option.
type ShippingMethod struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	ETA   string          `json:"eta"`
	Cost  decimal.Decimal `json:"cost"`
	Free  bool            `json:"free"`
}

// Quote is a fully computed order total.
type Quote struct {
	Lines          []Line
	Totals         Totals
	ShippingMethod ShippingMethod
	Shipping       decimal.Decimal
	Discount       decimal.Decimal
	PromoCode      string
	TaxRegion      string
	TaxRate        decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
}

// TotalCents is the total in minor units, as payment providers expect it.
func (q Quote) TotalCents() int64 {
	return q.Total.Shift(2).RoundBank(0).IntPart()
}

// Engine applies the configured shipping and tax table. It is safe for concurrent use.
type Engine struct {
	cfg config.Pricing
}

func NewEngine(cfg config.Pricing) *Engine {
	return &Engine{cfg: cfg}
}

// Currency is the lower-case ISO code prices are quoted in.
func (e *Engine) Currency() string { return e.cfg.Currency }

// DefaultRegion is the tax region used when none is given.
func (e *Engine) DefaultRegion() string { return e.cfg.DefaultRegion }

// ShippingMethods returns standard and express options for subtotal.
func (e *Engine) ShippingMethods(subtotal decimal.Decimal) []ShippingMethod {
	std := ShippingMethod{
		ID:    MethodStandard,
		Label: "Standard Shipping",
		ETA:   "5-7 business days",
		Cost:  e.standardRate(subtotal),
	}
	std.Free = std.Cost.IsZero()
	return []ShippingMethod{
		std,
		{
			ID:    MethodExpress,
			Label: "Express Shipping",
			ETA:   "2-3 business days",
			Cost:  e.cfg.ExpressRate,
		},
	}
}

// Shipping returns the option for method, or an error when it is unknown.
func (e *Engine) Shipping(method string, subtotal decimal.Decimal) (ShippingMethod, error) {
	for _, m := range e.ShippingMethods(subtotal) {
		if m.ID == method {
			return m, nil
		}
	}
	return ShippingMethod{}, fmt.Errorf("unknown shipping method %q", method)
}

func (e *Engine) standardRate(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(e.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	for _, b := range e.cfg.StandardBands {
		if b.Below.IsZero() || subtotal.LessThan(b.Below) {
			return b.Rate
		}
	}
	return e.cfg.StandardBands[len(e.cfg.StandardBands)-1].Rate
}

// TaxRate resolves region, falling back to the default region.
func (e *Engine) TaxRate(region string) (string, decimal.Decimal) {
	region = strings.ToUpper(strings.TrimSpace(region))
	if rate, ok := e.cfg.TaxRates[region]; ok {
		return region, rate
	}
	return e.cfg.DefaultRegion, e.cfg.TaxRates[e.cfg.DefaultRegion]
}

// Tax returns taxable × rate for region, rounded to the cent.
func (e *Engine) Tax(region string, taxable decimal.Decimal) decimal.Decimal {
	_, rate := e.TaxRate(region)
	return taxable.Mul(rate).RoundBank(2)
}

// Quote prices lines with the given shipping method, tax region and an
// already validated promo, which may be nil.
func (e *Engine) Quote(lines []Line, method, region string, promo *domain.PromoCode) (Quote, error) {
	totals := Summarize(lines)
	ship, err := e.Shipping(method, totals.Subtotal)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Lines:          lines,
		Totals:         totals,
		ShippingMethod: ship,
		Shipping:       ship.Cost,
		Discount:       decimal.Zero,
	}
	if promo != nil {
		q.PromoCode = promo.Code
		q.Discount = Discount(promo, totals.Subtotal, ship.Cost)
	}

	taxable := totals.Subtotal
	if promo == nil || promo.Type != domain.DiscountFreeShipping {
		taxable = taxable.Sub(q.Discount)
	}
	q.TaxRegion, q.TaxRate = e.TaxRate(region)
	q.Tax = taxable.Mul(q.TaxRate).RoundBank(2)
	q.Total = totals.Subtotal.Sub(q.Discount).Add(q.Shipping).Add(q.Tax)
	return q, nil
}
