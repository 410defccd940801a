package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

type shippingMethodResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	ETA   string `json:"eta"`
	Cost  string `json:"cost"`
	Free  bool   `json:"free"`
}

func toShippingMethods(ms []pricing.ShippingMethod) []shippingMethodResponse {
	out := make([]shippingMethodResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, shippingMethodResponse{ID: m.ID, Label: m.Label, ETA: m.ETA, Cost: money(m.Cost), Free: m.Free})
	}
	return out
}

type cartLineResponse struct {
	ItemID         int64  `json:"item_id"`
	ProductID      int64  `json:"product_id"`
	Title          string `json:"title"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	BasePrice      string `json:"base_price"`
	UnitPrice      string `json:"unit_price"`
	LineTotal      string `json:"line_total"`
	SavingsPercent int64  `json:"savings_percent,omitempty"`
	TierLabel      string `json:"tier_label,omitempty"`
}

type cartResponse struct {
	CartID           int64                    `json:"cart_id"`
	Items            []cartLineResponse       `json:"items"`
	ItemCount        int                      `json:"item_count"`
	Subtotal         string                   `json:"subtotal"`
	OriginalSubtotal string                   `json:"original_subtotal"`
	TotalSavings     string                   `json:"total_savings"`
	ShippingMethods  []shippingMethodResponse `json:"shipping_methods"`
}

func toCart(v *cart.View) cartResponse {
	resp := cartResponse{
		CartID:           v.CartID,
		Items:            make([]cartLineResponse, 0, len(v.Lines)),
		ItemCount:        v.Totals.ItemCount,
		Subtotal:         money(v.Totals.Subtotal),
		OriginalSubtotal: money(v.Totals.OriginalSubtotal),
		TotalSavings:     money(v.Totals.TotalSavings),
		ShippingMethods:  toShippingMethods(v.ShippingMethods),
	}
	for _, l := range v.Lines {
		resp.Items = append(resp.Items, cartLineResponse{
			ItemID:         l.ItemID,
			ProductID:      l.ProductID,
			Title:          l.Title,
			SKU:            l.SKU,
			Quantity:       l.Quantity,
			BasePrice:      money(l.BasePrice),
			UnitPrice:      money(l.UnitPrice),
			LineTotal:      money(l.LineTotal),
			SavingsPercent: l.SavingsPercent,
			TierLabel:      l.TierLabel,
		})
	}
	return resp
}

type cartMutationResponse struct {
	ItemID     int64  `json:"item_id,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	Removed    bool   `json:"removed"`
	Warning    string `json:"warning,omitempty"`
	TotalItems int    `json:"total_items"`
}

func toMutation(r *cart.Result) cartMutationResponse {
	resp := cartMutationResponse{Removed: r.Removed, Warning: r.Warning, TotalItems: r.TotalItems}
	if r.Item != nil {
		resp.ItemID = r.Item.ID
		resp.Quantity = r.Item.Quantity
	}
	return resp
}

type quoteResponse struct {
	Subtotal       string                 `json:"subtotal"`
	TotalSavings   string                 `json:"total_savings"`
	ShippingMethod shippingMethodResponse `json:"shipping_method"`
	Shipping       string                 `json:"shipping"`
	Discount       string                 `json:"discount"`
	PromoCode      string                 `json:"promo_code,omitempty"`
	TaxRegion      string                 `json:"tax_region"`
	TaxRate        string                 `json:"tax_rate"`
	Tax            string                 `json:"tax"`
	Total          string                 `json:"total"`
	TotalCents     int64                  `json:"total_cents"`
}

func toQuote(q *pricing.Quote) quoteResponse {
	m := q.ShippingMethod
	return quoteResponse{
		Subtotal:       money(q.Totals.Subtotal),
		TotalSavings:   money(q.Totals.TotalSavings),
		ShippingMethod: shippingMethodResponse{ID: m.ID, Label: m.Label, ETA: m.ETA, Cost: money(m.Cost), Free: m.Free},
		Shipping:       money(q.Shipping),
		Discount:       money(q.Discount),
		PromoCode:      q.PromoCode,
		TaxRegion:      q.TaxRegion,
		TaxRate:        q.TaxRate.String(),
		Tax:            money(q.Tax),
		Total:          money(q.Total),
		TotalCents:     q.TotalCents(),
	}
}

type addressResponse struct {
	Line1      string `json:"address_1"`
	Line2      string `json:"address_2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func toAddress(a domain.Address) addressResponse {
	return addressResponse{Line1: a.Line1, Line2: a.Line2, City: a.City, Region: a.Region, PostalCode: a.PostalCode, Country: a.Country}
}

type orderItemResponse struct {
	ProductID  int64  `json:"product_id"`
	Title      string `json:"title"`
	SKU        string `json:"sku"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

type orderResponse struct {
	OrderNumber    string              `json:"order_number"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"payment_status"`
	PaymentMethod  string              `json:"payment_method"`
	Email          string              `json:"email"`
	Name           string              `json:"name"`
	Shipping       addressResponse     `json:"shipping_address"`
	Billing        addressResponse     `json:"billing_address"`
	ShippingMethod string              `json:"shipping_method"`
	ShippingETA    string              `json:"shipping_eta"`
	Items          []orderItemResponse `json:"items"`
	Subtotal       string              `json:"subtotal"`
	Discount       string              `json:"discount"`
	PromoCode      string              `json:"promo_code,omitempty"`
	ShippingCost   string              `json:"shipping_cost"`
	Tax            string              `json:"tax"`
	Total          string              `json:"total"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ShippedAt      *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time          `json:"delivered_at,omitempty"`
}

func toOrder(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderNumber:    o.OrderNumber,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  o.PaymentMethod,
		Email:          o.Email,
		Name:           o.FullName(),
		Shipping:       toAddress(o.Shipping),
		Billing:        toAddress(o.Billing),
		ShippingMethod: o.ShippingMethod,
		ShippingETA:    o.ShippingETA,
		Items:          make([]orderItemResponse, 0, len(o.Items)),
		Subtotal:       money(o.Subtotal),
		Discount:       money(o.Discount),
		PromoCode:      o.PromoCode,
		ShippingCost:   money(o.ShippingCost),
		Tax:            money(o.Tax),
		Total:          money(o.Total),
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
		ShippedAt:      o.ShippedAt,
		DeliveredAt:    o.DeliveredAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:  it.ProductID,
			Title:      it.ProductTitle,
			SKU:        it.ProductSKU,
			Quantity:   it.Quantity,
			UnitPrice:  money(it.UnitPrice),
			TotalPrice: money(it.TotalPrice),
		})
	}
	return resp
}
