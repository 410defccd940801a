package mysql

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type productModel struct {
	ID             int64 `gorm:"primaryKey"`
	Title          string
	SKU            string              `gorm:"column:sku"`
	Price          decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	StockQuantity  int
	TrackInventory bool
	AllowBackorder bool
	MinimumOrder   int
	IsActive       bool
	Tiers          []tieredPriceModel `gorm:"foreignKey:ProductID"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (productModel) TableName() string { return "products" }

type tieredPriceModel struct {
	ID          int64 `gorm:"primaryKey"`
	ProductID   int64
	MinQuantity int
	MaxQuantity sql.NullInt64
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2)"`
	Label       string
}

func (tieredPriceModel) TableName() string { return "tiered_prices" }

type cartModel struct {
	ID         int64 `gorm:"primaryKey"`
	SessionKey string
	Items      []cartItemModel `gorm:"foreignKey:CartID"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (cartModel) TableName() string { return "carts" }

type cartItemModel struct {
	ID        int64 `gorm:"primaryKey"`
	CartID    int64
	ProductID int64
	Quantity  int
	Product   productModel `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (cartItemModel) TableName() string { return "cart_items" }

type promoModel struct {
	ID               int64 `gorm:"primaryKey"`
	Code             string
	DiscountType     string
	DiscountValue    decimal.Decimal     `gorm:"type:decimal(10,2)"`
	MaximumDiscount  decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	MinimumOrder     decimal.Decimal     `gorm:"type:decimal(10,2)"`
	UsageLimit       sql.NullInt64
	PerCustomerLimit sql.NullInt64
	UsageCount       int
	FirstOrderOnly   bool
	IsActive         bool
	ValidFrom        time.Time
	ValidUntil       sql.NullTime
}

func (promoModel) TableName() string { return "promo_codes" }

type addressColumns struct {
	Line1      string `gorm:"column:address_1"`
	Line2      string `gorm:"column:address_2"`
	City       string `gorm:"column:city"`
	Region     string `gorm:"column:state"`
	PostalCode string `gorm:"column:postal_code"`
	Country    string `gorm:"column:country"`
}

type orderModel struct {
	ID                    int64 `gorm:"primaryKey"`
	OrderNumber           string
	CustomerID            string
	IdempotencyKey        string
	Email                 string
	FirstName             string
	LastName              string
	CompanyName           string
	Phone                 string
	Shipping              addressColumns `gorm:"embedded;embeddedPrefix:shipping_"`
	ShippingMethod        string
	ShippingETA           string `gorm:"column:shipping_eta"`
	BillingSameAsShipping bool
	Billing               addressColumns `gorm:"embedded;embeddedPrefix:billing_"`
	CustomerNotes         string
	Subtotal              decimal.Decimal `gorm:"type:decimal(10,2)"`
	DiscountAmount        decimal.Decimal `gorm:"type:decimal(10,2)"`
	ShippingCost          decimal.Decimal `gorm:"type:decimal(10,2)"`
	TaxAmount             decimal.Decimal `gorm:"type:decimal(10,2)"`
	Total                 decimal.Decimal `gorm:"type:decimal(10,2)"`
	PromoCode             string
	Status                string
	PaymentStatus         string
	PaymentMethod         string
	PaymentID             sql.NullString
	TrackingNumber        string
	Items                 []orderItemModel `gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ShippedAt             sql.NullTime
	DeliveredAt           sql.NullTime
	NotifiedAt            sql.NullTime
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID           int64 `gorm:"primaryKey"`
	OrderID      int64
	ProductID    int64
	ProductTitle string
	ProductSKU   string `gorm:"column:product_sku"`
	Quantity     int
	UnitPrice    decimal.Decimal `gorm:"type:decimal(10,2)"`
	TotalPrice   decimal.Decimal `gorm:"type:decimal(10,2)"`
}

func (orderItemModel) TableName() string { return "order_items" }
