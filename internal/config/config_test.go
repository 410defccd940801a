package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("PRICING_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.Checkout.IdempotencyWindow)
	assert.True(t, cfg.Checkout.RejectInvalidPromo)
	assert.Equal(t, 30, cfg.RateLimit.CartPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.CheckoutPerMinute)
	assert.Equal(t, "ON", cfg.Pricing.DefaultRegion)
	assert.True(t, cfg.Pricing.TaxRates["ON"].Equal(decimal.RequireFromString("0.13")))
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadPricingFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	body := `
free_shipping_threshold: "300.00"
express_rate: "20.00"
tax_rates:
  qc: "0.15"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	p, err := LoadPricingFile(path)
	require.NoError(t, err)

	assert.True(t, p.FreeShippingThreshold.Equal(decimal.RequireFromString("300")))
	assert.True(t, p.ExpressRate.Equal(decimal.RequireFromString("20")))
	assert.True(t, p.TaxRates["QC"].Equal(decimal.RequireFromString("0.15")))
	assert.True(t, p.TaxRates["ON"].Equal(decimal.RequireFromString("0.13")))
	assert.Len(t, p.StandardBands, 3)
}

func TestPricingValidate(t *testing.T) {
	p := DefaultPricing()
	require.NoError(t, p.Validate())

	p.StandardBands = []ShippingBand{{Below: decimal.NewFromInt(100), Rate: decimal.NewFromInt(5)}}
	assert.Error(t, p.Validate())

	p = DefaultPricing()
	p.DefaultRegion = "ZZ"
	assert.Error(t, p.Validate())
}
