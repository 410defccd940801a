package validation

// AddressInput is a postal address as submitted by the checkout form.
type AddressInput struct {
	Line1      string `json:"address_1" validate:"required,max=255"`
	Line2      string `json:"address_2" validate:"max=255"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"max=100"`
}

// CheckoutRequest is the payload for POST /checkout and POST /payments/confirm.
// Totals are never accepted from the client.
type CheckoutRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Phone       string `json:"phone" validate:"required,max=20"`
	CompanyName string `json:"company_name" validate:"max=200"`

	Shipping AddressInput `json:"shipping"`

	// BillingDifferent makes Billing mandatory.
	BillingDifferent bool         `json:"billing_different"`
	Billing          AddressInput `json:"billing" validate:"-"`

	ShippingMethod  string `json:"shipping_method" validate:"omitempty,oneof=standard express"`
	PromoCode       string `json:"promo_code" validate:"max=50"`
	CustomerNotes   string `json:"customer_notes" validate:"max=2000"`
	PaymentIntentID string `json:"payment_intent_id" validate:"omitempty,startswith=pi_"`
}

// AddItemRequest is the payload for POST /cart/items.
type AddItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// SetQuantityRequest is the payload for PUT /cart/items/:id. Zero or less removes the line.
type SetQuantityRequest struct {
	Quantity int `json:"quantity" validate:"max=9999"`
}

// AdjustRequest is the payload for PATCH /cart/items/:id.
type AdjustRequest struct {
	Delta int `json:"delta" validate:"required,min=-9999,max=9999"`
}

// IntentRequest is the payload for POST /payments/intent.
type IntentRequest struct {
	Email          string `json:"email" validate:"omitempty,email"`
	ShippingMethod string `json:"shipping_method" validate:"omitempty,oneof=standard express"`
	Region         string `json:"state" validate:"max=100"`
	PromoCode      string `json:"promo_code" validate:"max=50"`
}

// StatusRequest is the payload for POST /admin/orders/:number/status.
type StatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled refunded"`
	Expected       string `json:"expected_status" validate:"omitempty,oneof=pending confirmed processing shipped delivered cancelled refunded"`
	TrackingNumber string `json:"tracking_number" validate:"max=100"`
}

// CancelRequest is the payload for POST /orders/:number/cancel.
type CancelRequest struct {
	Email string `json:"email" validate:"required,email"`
}
