package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment axis.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// IsTerminal reports whether no further fulfilment transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderRefunded
}

func (s OrderStatus) String() string { return string(s) }

// PaymentStatus is the payment axis, independent of fulfilment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) String() string { return string(s) }

// Address is a frozen postal address.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// String renders the address on one line for notifications.
func (a Address) String() string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City+", "+a.Region+" "+a.PostalCode, a.Country)
	return strings.Join(parts, ", ")
}

// Order is immutable after creation except for status, payment and tracking fields.
type Order struct {
	ID             int64
	OrderNumber    string
	CustomerID     string
	IdempotencyKey string

	Email       string
	FirstName   string
	LastName    string
	CompanyName string
	Phone       string

	Shipping              Address
	ShippingMethod        string
	ShippingETA           string
	BillingSameAsShipping bool
	Billing               Address
	CustomerNotes         string

	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
	PromoCode    string

	Status         OrderStatus
	PaymentStatus  PaymentStatus
	PaymentMethod  string
	PaymentID      string
	TrackingNumber string

	Items []OrderItem

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	NotifiedAt  *time.Time
}

// FullName joins first and last name.
func (o *Order) FullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// OrderItem is a frozen snapshot of a cart line at commit time.
type OrderItem struct {
	ID           int64
	ProductID    int64
	ProductTitle string
	ProductSKU   string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
}

// StatusUpdate carries every mutable order field written by a transition.
type StatusUpdate struct {
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	TrackingNumber string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	UpdatedAt      time.Time
}
