package mysql

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

func toDomainProduct(m *productModel) domain.Product {
	p := domain.Product{
		ID:             m.ID,
		Title:          m.Title,
		SKU:            m.SKU,
		StockQuantity:  m.StockQuantity,
		TrackInventory: m.TrackInventory,
		AllowBackorder: m.AllowBackorder,
		MinimumOrder:   m.MinimumOrder,
		IsActive:       m.IsActive,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.Price.Valid {
		price := m.Price.Decimal
		p.Price = &price
	}
	for _, t := range m.Tiers {
		tier := domain.TieredPrice{
			ID:          t.ID,
			ProductID:   t.ProductID,
			MinQuantity: t.MinQuantity,
			UnitPrice:   t.UnitPrice,
			Label:       t.Label,
		}
		if t.MaxQuantity.Valid {
			max := int(t.MaxQuantity.Int64)
			tier.MaxQuantity = &max
		}
		p.Tiers = append(p.Tiers, tier)
	}
	return p
}

func toDomainCart(m *cartModel) *domain.Cart {
	c := &domain.Cart{
		ID:         m.ID,
		SessionKey: m.SessionKey,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	for i := range m.Items {
		c.Items = append(c.Items, toDomainCartItem(&m.Items[i]))
	}
	return c
}

func toDomainCartItem(m *cartItemModel) domain.CartItem {
	return domain.CartItem{
		ID:        m.ID,
		CartID:    m.CartID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		Product:   toDomainProduct(&m.Product),
	}
}

func toDomainPromo(m *promoModel) *domain.PromoCode {
	p := &domain.PromoCode{
		ID:             m.ID,
		Code:           m.Code,
		Type:           domain.DiscountType(m.DiscountType),
		Value:          m.DiscountValue,
		MinimumOrder:   m.MinimumOrder,
		UsageCount:     m.UsageCount,
		FirstOrderOnly: m.FirstOrderOnly,
		IsActive:       m.IsActive,
		ValidFrom:      m.ValidFrom,
	}
	if m.MaximumDiscount.Valid {
		max := m.MaximumDiscount.Decimal
		p.MaximumDiscount = &max
	}
	p.UsageLimit = nullIntPtr(m.UsageLimit)
	p.PerCustomerLimit = nullIntPtr(m.PerCustomerLimit)
	p.ValidUntil = nullTimePtr(m.ValidUntil)
	return p
}

func toDomainOrder(m *orderModel) *domain.Order {
	o := &domain.Order{
		ID:                    m.ID,
		OrderNumber:           m.OrderNumber,
		CustomerID:            m.CustomerID,
		IdempotencyKey:        m.IdempotencyKey,
		Email:                 m.Email,
		FirstName:             m.FirstName,
		LastName:              m.LastName,
		CompanyName:           m.CompanyName,
		Phone:                 m.Phone,
		Shipping:              domain.Address(m.Shipping),
		ShippingMethod:        m.ShippingMethod,
		ShippingETA:           m.ShippingETA,
		BillingSameAsShipping: m.BillingSameAsShipping,
		Billing:               domain.Address(m.Billing),
		CustomerNotes:         m.CustomerNotes,
		Subtotal:              m.Subtotal,
		Discount:              m.DiscountAmount,
		ShippingCost:          m.ShippingCost,
		Tax:                   m.TaxAmount,
		Total:                 m.Total,
		PromoCode:             m.PromoCode,
		Status:                domain.OrderStatus(m.Status),
		PaymentStatus:         domain.PaymentStatus(m.PaymentStatus),
		PaymentMethod:         m.PaymentMethod,
		PaymentID:             m.PaymentID.String,
		TrackingNumber:        m.TrackingNumber,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
		ShippedAt:             nullTimePtr(m.ShippedAt),
		DeliveredAt:           nullTimePtr(m.DeliveredAt),
		NotifiedAt:            nullTimePtr(m.NotifiedAt),
	}
	for _, it := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductTitle: it.ProductTitle,
			ProductSKU:   it.ProductSKU,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TotalPrice:   it.TotalPrice,
		})
	}
	return o
}

func fromDomainOrder(o *domain.Order) *orderModel {
	m := &orderModel{
		OrderNumber:           o.OrderNumber,
		CustomerID:            o.CustomerID,
		IdempotencyKey:        o.IdempotencyKey,
		Email:                 o.Email,
		FirstName:             o.FirstName,
		LastName:              o.LastName,
		CompanyName:           o.CompanyName,
		Phone:                 o.Phone,
		Shipping:              addressColumns(o.Shipping),
		ShippingMethod:        o.ShippingMethod,
		ShippingETA:           o.ShippingETA,
		BillingSameAsShipping: o.BillingSameAsShipping,
		Billing:               addressColumns(o.Billing),
		CustomerNotes:         o.CustomerNotes,
		Subtotal:              o.Subtotal,
		DiscountAmount:        o.Discount,
		ShippingCost:          o.ShippingCost,
		TaxAmount:             o.Tax,
		Total:                 o.Total,
		PromoCode:             o.PromoCode,
		Status:                string(o.Status),
		PaymentStatus:         string(o.PaymentStatus),
		PaymentMethod:         o.PaymentMethod,
		PaymentID:             sql.NullString{String: o.PaymentID, Valid: o.PaymentID != ""},
		TrackingNumber:        o.TrackingNumber,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.CreatedAt,
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			ProductID:    it.ProductID,
			ProductTitle: it.ProductTitle,
			ProductSKU:   it.ProductSKU,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TotalPrice:   it.TotalPrice,
		})
	}
	return m
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
