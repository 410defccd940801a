package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imrishuroy/go-idempotent-checkout/internal/tracing"
)

// StripeProvider creates and reads PaymentIntents through the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider builds a client with its own HTTP timeout.
func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (s *StripeProvider) CreateIntent(ctx context.Context, p IntentParams) (Intent, error) {
	ctx, span := tracing.Start(ctx, "stripe.CreatePaymentIntent")
	defer span.End()
	span.SetAttributes(attribute.Int64("payment.amount_cents", p.AmountCents))

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func (s *StripeProvider) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	ctx, span := tracing.Start(ctx, "stripe.GetPaymentIntent")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", id))

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			return Intent{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
		}
		return Intent{}, fmt.Errorf("retrieve payment intent: %w", err)
	}
	return fromStripe(pi), nil
}

func fromStripe(pi *stripe.PaymentIntent) Intent {
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
