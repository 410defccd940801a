package validation

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// SanitizeText strips all markup from s and trims surrounding space.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	// StrictPolicy escapes entities; plain text keeps them literal.
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

func (a *AddressInput) normalize() {
	a.Line1 = SanitizeText(a.Line1)
	a.Line2 = SanitizeText(a.Line2)
	a.City = SanitizeText(a.City)
	a.Region = strings.ToUpper(SanitizeText(a.Region))
	a.PostalCode = strings.ToUpper(SanitizeText(a.PostalCode))
	a.Country = SanitizeText(a.Country)
	if a.Country == "" {
		a.Country = "Canada"
	}
}

// Normalize sanitises every free-text field in place. It runs before
// validation so that markup-only input counts as empty.
func (r *CheckoutRequest) Normalize() {
	r.FirstName = SanitizeText(r.FirstName)
	r.LastName = SanitizeText(r.LastName)
	r.Email = strings.ToLower(SanitizeText(r.Email))
	r.Phone = SanitizeText(r.Phone)
	r.CompanyName = SanitizeText(r.CompanyName)
	r.Shipping.normalize()
	if r.BillingDifferent {
		r.Billing.normalize()
	} else {
		r.Billing = r.Shipping
	}
	r.ShippingMethod = strings.ToLower(strings.TrimSpace(r.ShippingMethod))
	r.PromoCode = strings.ToUpper(SanitizeText(r.PromoCode))
	r.CustomerNotes = SanitizeText(r.CustomerNotes)
	r.PaymentIntentID = strings.TrimSpace(r.PaymentIntentID)
}
