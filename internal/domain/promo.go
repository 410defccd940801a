package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates promo code kinds.
type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixed        DiscountType = "fixed"
	DiscountFreeShipping DiscountType = "free_shipping"
)

// PromoCode is stored with an upper-cased code.
type PromoCode struct {
	ID               int64
	Code             string
	Type             DiscountType
	Value            decimal.Decimal
	MaximumDiscount  *decimal.Decimal
	MinimumOrder     decimal.Decimal
	UsageLimit       *int
	PerCustomerLimit *int
	UsageCount       int
	FirstOrderOnly   bool
	IsActive         bool
	ValidFrom        time.Time
	ValidUntil       *time.Time
}

// CustomerHistory is what promo eligibility needs to know about an email.
type CustomerHistory struct {
	CodeUses int // prior orders by this email carrying the code
	Orders   int // prior orders by this email, any code
}

// NormalizeCode upper-cases and trims a customer-supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
