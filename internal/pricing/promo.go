package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

// ValidatePromo checks promo against the cart subtotal and the customer's
// order history. A nil promo is an unknown code.
func ValidatePromo(promo *domain.PromoCode, subtotal decimal.Decimal, history domain.CustomerHistory, now time.Time) error {
	if promo == nil {
		return &domain.PromoError{Reason: domain.ReasonInvalidPromo}
	}
	reject := func(reason string) error {
		return &domain.PromoError{Code: promo.Code, Reason: reason}
	}

	switch {
	case !promo.IsActive:
		return reject(domain.ReasonPromoInactive)
	case now.Before(promo.ValidFrom):
		return reject(domain.ReasonPromoNotYetValid)
	case promo.ValidUntil != nil && now.After(*promo.ValidUntil):
		return reject(domain.ReasonPromoExpired)
	case promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit:
		return reject(domain.ReasonPromoUsageLimit)
	case subtotal.LessThan(promo.MinimumOrder):
		return reject(MinimumOrderReason(promo.MinimumOrder))
	case promo.PerCustomerLimit != nil && history.CodeUses >= *promo.PerCustomerLimit:
		return reject(domain.ReasonPromoPerCustomer)
	case promo.FirstOrderOnly && history.Orders > 0:
		return reject(domain.ReasonPromoFirstOrder)
	}
	return nil
}

// MinimumOrderReason formats the minimum-spend rejection.
func MinimumOrderReason(min decimal.Decimal) string {
	return "minimum order of $" + min.StringFixed(2) + " required"
}

// Discount computes the amount promo takes off. For free shipping it equals shipping.
func Discount(promo *domain.PromoCode, subtotal, shipping decimal.Decimal) decimal.Decimal {
	switch promo.Type {
	case domain.DiscountPercentage:
		d := subtotal.Mul(promo.Value).Div(hundred).RoundBank(2)
		if promo.MaximumDiscount != nil && d.GreaterThan(*promo.MaximumDiscount) {
			d = *promo.MaximumDiscount
		}
		return d
	case domain.DiscountFixed:
		return decimal.Min(promo.Value, subtotal)
	case domain.DiscountFreeShipping:
		return shipping
	}
	return decimal.Zero
}
