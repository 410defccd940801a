package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

var (
	ErrWebhookNotConfigured = errors.New("webhook secret not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
)

// OrderPayments is the slice of the order store webhook handling needs.
type OrderPayments interface {
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, number string, expected, next domain.PaymentStatus) error
}

// Reconciler applies processor webhook events to orders. Every event may be
// delivered more than once; handling is safe to repeat.
type Reconciler struct {
	orders OrderPayments
	secret string
}

func NewReconciler(orders OrderPayments, secret string) *Reconciler {
	return &Reconciler{orders: orders, secret: secret}
}

// Outcome says what a webhook delivery did.
type Outcome string

const (
	OutcomeIgnored       Outcome = "ignored"
	OutcomeAlreadyPlaced Outcome = "already_placed"
	OutcomeOrphanPayment Outcome = "orphan_payment"
	OutcomeMarkedFailed  Outcome = "marked_failed"
)

// Handle verifies payload against the signature header and applies it.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if r.secret == "" {
		return "", ErrWebhookNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := zerolog.Ctx(ctx).With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		log.Debug().Msg("webhook event acknowledged")
		return OutcomeIgnored, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", fmt.Errorf("decode payment intent: %w", err)
	}
	log = log.With().Str("payment_intent", pi.ID).Logger()

	order, err := r.orders.FindOrderByPaymentID(ctx, pi.ID)
	if err != nil {
		return "", fmt.Errorf("find order by payment: %w", err)
	}

	if event.Type == "payment_intent.succeeded" {
		if order != nil {
			return OutcomeAlreadyPlaced, nil
		}
		// the customer may not have returned from the payment page yet
		log.Warn().Int64("amount_cents", pi.Amount).Msg("payment succeeded without an order")
		return OutcomeOrphanPayment, nil
	}

	if order == nil || order.PaymentStatus != domain.PaymentPending {
		return OutcomeIgnored, nil
	}
	err = r.orders.UpdatePaymentStatus(ctx, order.OrderNumber, domain.PaymentPending, domain.PaymentFailed)
	if errors.Is(err, store.ErrConditionFailed) {
		return OutcomeIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("mark payment failed: %w", err)
	}
	log.Info().Str("order_number", order.OrderNumber).Msg("payment marked failed")
	return OutcomeMarkedFailed, nil
}
