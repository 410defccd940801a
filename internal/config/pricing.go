package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ShippingBand charges Rate for subtotals strictly below Below.
// A zero Below marks the open-ended last band.
type ShippingBand struct {
	Below decimal.Decimal `yaml:"below"`
	Rate  decimal.Decimal `yaml:"rate"`
}

// Pricing is the shipping and tax table the pricing engine is built from.
type Pricing struct {
	Currency              string                     `yaml:"currency"`
	FreeShippingThreshold decimal.Decimal            `yaml:"free_shipping_threshold"`
	StandardBands         []ShippingBand             `yaml:"standard_bands"`
	ExpressRate           decimal.Decimal            `yaml:"express_rate"`
	TaxRates              map[string]decimal.Decimal `yaml:"tax_rates"`
	DefaultRegion         string                     `yaml:"default_region"`
}

// DefaultPricing is the Canadian storefront table.
func DefaultPricing() Pricing {
	d := decimal.RequireFromString
	return Pricing{
		Currency:              "cad",
		FreeShippingThreshold: d("500.00"),
		StandardBands: []ShippingBand{
			{Below: d("100.00"), Rate: d("15.00")},
			{Below: d("250.00"), Rate: d("25.00")},
			{Rate: d("35.00")},
		},
		ExpressRate: d("12.00"),
		TaxRates: map[string]decimal.Decimal{
			"AB": d("0.05"),
			"BC": d("0.12"),
			"MB": d("0.12"),
			"NB": d("0.15"),
			"NL": d("0.15"),
			"NS": d("0.14"),
			"NT": d("0.05"),
			"NU": d("0.05"),
			"ON": d("0.13"),
			"PE": d("0.15"),
			"QC": d("0.14975"),
			"SK": d("0.11"),
			"YT": d("0.05"),
		},
		DefaultRegion: "ON",
	}
}

// LoadPricingFile overlays the YAML file at path onto the defaults.
// Keys absent from the file keep their default values.
func LoadPricingFile(path string) (Pricing, error) {
	p := DefaultPricing()
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read pricing file: %w", err)
	}
	var overlay Pricing
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return p, fmt.Errorf("parse pricing file: %w", err)
	}

	if overlay.Currency != "" {
		p.Currency = strings.ToLower(overlay.Currency)
	}
	if !overlay.FreeShippingThreshold.IsZero() {
		p.FreeShippingThreshold = overlay.FreeShippingThreshold
	}
	if len(overlay.StandardBands) > 0 {
		p.StandardBands = overlay.StandardBands
	}
	if !overlay.ExpressRate.IsZero() {
		p.ExpressRate = overlay.ExpressRate
	}
	for region, rate := range overlay.TaxRates {
		p.TaxRates[strings.ToUpper(region)] = rate
	}
	if overlay.DefaultRegion != "" {
		p.DefaultRegion = strings.ToUpper(overlay.DefaultRegion)
	}
	return p, p.Validate()
}

// Validate rejects tables the engine cannot price with.
func (p Pricing) Validate() error {
	if len(p.StandardBands) == 0 {
		return fmt.Errorf("pricing: no standard shipping bands")
	}
	last := p.StandardBands[len(p.StandardBands)-1]
	if !last.Below.IsZero() {
		return fmt.Errorf("pricing: last shipping band must be open-ended")
	}
	for i := 1; i < len(p.StandardBands)-1; i++ {
		if !p.StandardBands[i].Below.GreaterThan(p.StandardBands[i-1].Below) {
			return fmt.Errorf("pricing: shipping bands must be ascending")
		}
	}
	if _, ok := p.TaxRates[p.DefaultRegion]; !ok {
		return fmt.Errorf("pricing: default region %q has no tax rate", p.DefaultRegion)
	}
	return nil
}
