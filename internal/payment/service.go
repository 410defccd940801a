package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
)

// CartQuote is a server-side quote for a session cart.
type CartQuote struct {
	CartID int64
	Quote  pricing.Quote
}

// Quoter prices the current cart of a session. email drives the
// per-customer promo checks and may be empty for guests.
type Quoter interface {
	QuoteCart(ctx context.Context, session, method, region, promoCode, email string) (CartQuote, error)
}

// IntentRequest asks for an intent covering the session's cart.
type IntentRequest struct {
	Session        string
	Customer       string
	ShippingMethod string
	Region         string
	PromoCode      string
}

// IntentResponse is returned to the browser to complete payment.
type IntentResponse struct {
	IntentID     string
	ClientSecret string
	Quote        pricing.Quote
}

type Service struct {
	provider Provider
	quoter   Quoter
	currency string
	window   time.Duration
	now      func() time.Time
	inflight singleflight.Group
}

func NewService(provider Provider, quoter Quoter, currency string, window time.Duration) *Service {
	return &Service{
		provider: provider,
		quoter:   quoter,
		currency: currency,
		window:   window,
		now:      time.Now,
	}
}

// CreateIntent quotes the cart server-side and opens an intent for the total.
// Repeat requests within the idempotency window reuse the same intent.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (*IntentResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Customer))
	cq, err := s.quoter.QuoteCart(ctx, req.Session, req.ShippingMethod, req.Region, req.PromoCode, email)
	if err != nil {
		return nil, err
	}
	cents := cq.Quote.TotalCents()
	if cents <= 0 {
		return nil, domain.NewValidationError("total", "order total must be greater than zero")
	}

	customer := req.Customer
	if customer == "" {
		customer = req.Session
	}
	key := idempotency.Key(cq.CartID, customer+"_intent", s.now(), s.window)

	// concurrent clicks for the same cart and amount share one provider call
	v, err, _ := s.inflight.Do(key+":"+strconv.FormatInt(cents, 10), func() (interface{}, error) {
		return s.provider.CreateIntent(ctx, IntentParams{
			AmountCents:    cents,
			Currency:       s.currency,
			IdempotencyKey: key,
			Metadata: map[string]string{
				"cart_id":         strconv.FormatInt(cq.CartID, 10),
				"session":         req.Session,
				"shipping_method": cq.Quote.ShippingMethod.ID,
				"promo_code":      cq.Quote.PromoCode,
				"total":           cq.Quote.Total.StringFixed(2),
			},
		})
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("cart_id", cq.CartID).Msg("create payment intent failed")
		return nil, &domain.PaymentVerificationError{Reason: "payment service unavailable, please try again", Retryable: true}
	}
	in := v.(Intent)
	return &IntentResponse{IntentID: in.ID, ClientSecret: in.ClientSecret, Quote: cq.Quote}, nil
}

// VerifyIntent checks that an intent succeeded and was for exactly amountCents.
func VerifyIntent(in Intent, amountCents int64) error {
	if !in.Succeeded() {
		return &domain.PaymentVerificationError{Reason: fmt.Sprintf("payment not completed (status %s)", in.Status)}
	}
	if in.AmountCents != amountCents {
		return &domain.PaymentVerificationError{
			Reason: fmt.Sprintf("payment amount %d does not match order total %d", in.AmountCents, amountCents),
		}
	}
	return nil
}
