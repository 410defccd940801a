package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

// Email is an outbound mail job consumed by the mail relay.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Kind    string `json:"kind"`
	Order   string `json:"order_number"`
}

// Mailer hands email jobs to a delivery channel.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// KafkaMailer writes email jobs to the outbound mail topic.
type KafkaMailer struct {
	writer MessageWriter
}

func NewKafkaMailer(w MessageWriter) *KafkaMailer {
	return &KafkaMailer{writer: w}
}

func (m *KafkaMailer) Send(ctx context.Context, e Email) error {
	if err := publishJSON(ctx, m.writer, e.Order+":"+e.Kind, e); err != nil {
		return fmt.Errorf("publish %s email: %w", e.Kind, err)
	}
	return nil
}

const customerTmpl = `Thank you for your order!

Order Number: {{.OrderNumber}}
Order Date: {{.CreatedAt.Format "January 02, 2006 at 03:04 PM"}}

Order Details:
{{range .Items}}  - {{.ProductTitle}} x {{.Quantity}} @ ${{.UnitPrice.StringFixed 2}} = ${{.TotalPrice.StringFixed 2}}
{{end}}
Subtotal: ${{.Subtotal.StringFixed 2}}
{{if .Discount.IsPositive}}Discount ({{.PromoCode}}): -${{.Discount.StringFixed 2}}
{{end}}Shipping: ${{.ShippingCost.StringFixed 2}}
Tax: ${{.Tax.StringFixed 2}}
Total: ${{.Total.StringFixed 2}}

Shipping Address:
{{.FullName}}
{{.Shipping}}

What's Next?
- Our team will review your order within 24 hours
- You'll receive tracking info when your order ships
`

const adminTmpl = `NEW ORDER RECEIVED

Order Number: {{.OrderNumber}}
Order Date: {{.CreatedAt.Format "January 02, 2006 at 03:04 PM"}}

CUSTOMER:
- Name: {{.FullName}}
- Email: {{.Email}}
- Phone: {{.Phone}}
- Company: {{if .CompanyName}}{{.CompanyName}}{{else}}N/A{{end}}

ORDER ITEMS:
{{range .Items}}  - {{.ProductTitle}} ({{.ProductSKU}}) x {{.Quantity}} @ ${{.UnitPrice.StringFixed 2}} = ${{.TotalPrice.StringFixed 2}}
{{end}}
TOTALS:
- Subtotal: ${{.Subtotal.StringFixed 2}}
- Total: ${{.Total.StringFixed 2}}

SHIPPING ADDRESS:
{{.Shipping}}

CUSTOMER NOTES:
{{if .CustomerNotes}}{{.CustomerNotes}}{{else}}None{{end}}
`

var (
	customerTemplate = template.Must(template.New("customer").Parse(customerTmpl))
	adminTemplate    = template.Must(template.New("admin").Parse(adminTmpl))
)

// RenderCustomerEmail builds the customer confirmation for o.
func RenderCustomerEmail(o *domain.Order) (Email, error) {
	body, err := render(customerTemplate, o)
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      o.Email,
		Subject: fmt.Sprintf("Order Confirmation - %s", o.OrderNumber),
		Body:    body,
		Kind:    "customer_confirmation",
		Order:   o.OrderNumber,
	}, nil
}

// RenderAdminEmail builds the new-order notification sent to the shop.
func RenderAdminEmail(o *domain.Order, to string) (Email, error) {
	body, err := render(adminTemplate, o)
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      to,
		Subject: fmt.Sprintf("New Order #%s - $%s", o.OrderNumber, o.Total.StringFixed(2)),
		Body:    body,
		Kind:    "admin_notification",
		Order:   o.OrderNumber,
	}, nil
}

func render(t *template.Template, o *domain.Order) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, o); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
