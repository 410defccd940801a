package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/notify"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
	"github.com/imrishuroy/go-idempotent-checkout/internal/tracing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Guard claims idempotency keys. Both the DynamoDB and in-memory stores satisfy it.
type Guard interface {
	Claim(ctx context.Context, key, owner string) (idempotency.Claim, error)
	MarkDone(ctx context.Context, key, orderNumber string) error
	MarkFailed(ctx context.Context, key, note string) error
}

// SessionOrders remembers which session placed an order.
type SessionOrders interface {
	Remember(ctx context.Context, session, orderNumber string) error
}

// Recorder receives checkout outcome metrics.
type Recorder interface {
	CheckoutOutcome(outcome string)
	StageDuration(stage string, d time.Duration)
}

// Deps are the collaborators of Service. Notifier, Sessions and Metrics may be nil.
type Deps struct {
	Store     store.Store
	Guard     Guard
	Engine    *pricing.Engine
	Payments  payment.Provider
	Notifier  notify.Notifier
	Sessions  SessionOrders
	Metrics   Recorder
	Validator *validatorv10.Validate
	Config    config.Checkout
}

type Service struct {
	deps  Deps
	chain Handler
	now   func() time.Time
}

func NewService(d Deps) *Service {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Config.IdempotencyWindow <= 0 {
		d.Config.IdempotencyWindow = idempotency.DefaultWindow
	}

	chain := &validateStep{store: d.Store, validator: d.Validator}
	chain.SetNext(&idempotencyStep{guard: d.Guard, orders: d.Store, window: d.Config.IdempotencyWindow}).
		SetNext(&paymentStep{provider: d.Payments, orders: d.Store}).
		SetNext(&priceStep{promos: d.Store, orders: d.Store, engine: d.Engine, rejectInvalidPromo: d.Config.RejectInvalidPromo}).
		SetNext(&commitStep{store: d.Store, engine: d.Engine}).
		SetNext(&notifyStep{guard: d.Guard, notifier: d.Notifier, sessions: d.Sessions})

	return &Service{deps: d, chain: chain, now: time.Now}
}

// Request is one checkout submission.
type Request struct {
	Session string
	// Customer identifies the buyer for idempotency. The form email, then
	// the session, is used when empty.
	Customer      string
	Form          validation.CheckoutRequest
	CorrelationID string
}

// Checkout validates, prices and commits the session cart. A resubmission
// inside the idempotency window returns the first order with Duplicate set.
func (s *Service) Checkout(ctx context.Context, req Request) (*Result, error) {
	start := s.now()
	ctx, span := tracing.Start(ctx, "checkout.Checkout")
	defer span.End()

	log := zerolog.Ctx(ctx).With().Str("session", req.Session).Logger()
	if req.CorrelationID != "" {
		log = log.With().Str("correlation_id", req.CorrelationID).Logger()
	}
	ctx = log.WithContext(ctx)

	customer := strings.TrimSpace(req.Customer)
	if customer == "" {
		customer = strings.ToLower(strings.TrimSpace(req.Form.Email))
	}
	if customer == "" {
		customer = req.Session
	}
	cc := &checkoutContext{
		Ctx:           ctx,
		Tracer:        tracing.Tracer(),
		Log:           log,
		Now:           start,
		Session:       req.Session,
		Customer:      customer,
		CorrelationID: req.CorrelationID,
		Form:          req.Form,
		Result:        &Result{},
	}

	err := s.chain.Handle(cc)
	if err != nil {
		cc.TriggerCompensation(context.WithoutCancel(ctx))
		cc.transition(StateRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout rejected")
		s.record(outcomeFor(err), start)
		if !domain.IsDomain(err) {
			var pe *domain.PersistenceError
			if !errors.As(err, &pe) {
				log.Error().Err(err).Msg("checkout failed")
				err = &domain.PersistenceError{Op: "checkout", Err: err}
			}
		}
		return cc.Result, err
	}

	res := cc.Result
	switch {
	case res.Duplicate:
		// Releases a claim taken before the earlier order was found.
		cc.TriggerCompensation(context.WithoutCancel(ctx))
		s.record("duplicate", start)
	case res.Degraded:
		s.record("confirmed_degraded", start)
	default:
		s.record("confirmed", start)
	}
	if res.Order != nil {
		span.SetAttributes(attribute.String("order.number", res.Order.OrderNumber), attribute.Bool("checkout.duplicate", res.Duplicate))
	}
	return res, nil
}

func (s *Service) record(outcome string, start time.Time) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.CheckoutOutcome(outcome)
	s.deps.Metrics.StageDuration("checkout", s.now().Sub(start))
}

func outcomeFor(err error) string {
	var (
		ve *domain.ValidationError
		se *domain.InsufficientStockError
		pe *domain.PromoError
		de *domain.DuplicateSubmissionError
		pv *domain.PaymentVerificationError
	)
	switch {
	case errors.As(err, &ve), errors.Is(err, domain.ErrEmptyCart):
		return "rejected_validation"
	case errors.As(err, &se):
		return "rejected_stock"
	case errors.As(err, &pe):
		return "rejected_promo"
	case errors.As(err, &de):
		return "in_flight"
	case errors.As(err, &pv):
		return "rejected_payment"
	}
	return "error"
}

// QuoteRequest selects the options a quote is priced with.
type QuoteRequest struct {
	Session        string
	ShippingMethod string
	Region         string
	PromoCode      string
	Email          string
}

// Quote prices the session cart without side effects. An empty region uses
// the default tax region and an empty method uses standard shipping.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*pricing.Quote, int64, error) {
	c, err := s.deps.Store.GetOrCreateCart(ctx, req.Session)
	if err != nil {
		return nil, 0, fmt.Errorf("load cart: %w", err)
	}
	if len(c.Items) == 0 {
		return nil, c.ID, domain.ErrEmptyCart
	}
	lines := priceLines(c)

	method := defaultMethod(req.ShippingMethod)
	if _, err := s.deps.Engine.Shipping(method, pricing.Summarize(lines).Subtotal); err != nil {
		return nil, c.ID, domain.NewValidationError("shipping_method", "Please select a valid shipping method")
	}

	promo, err := resolvePromo(ctx, s.deps.Store, s.deps.Store, req.PromoCode, req.Email, pricing.Summarize(lines).Subtotal, s.now(), s.deps.Config.RejectInvalidPromo)
	if err != nil {
		return nil, c.ID, err
	}
	q, err := s.deps.Engine.Quote(lines, method, req.Region, promo)
	if err != nil {
		return nil, c.ID, err
	}
	return &q, c.ID, nil
}

// QuoteCart adapts Quote for payment intent creation.
// The promo is validated against email exactly as the commit will.
func (s *Service) QuoteCart(ctx context.Context, session, method, region, promoCode, email string) (payment.CartQuote, error) {
	q, cartID, err := s.Quote(ctx, QuoteRequest{Session: session, ShippingMethod: method, Region: region, PromoCode: promoCode, Email: email})
	if err != nil {
		return payment.CartQuote{}, err
	}
	return payment.CartQuote{CartID: cartID, Quote: *q}, nil
}

func defaultMethod(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return pricing.MethodStandard
	}
	return m
}

func priceLines(c *domain.Cart) []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.PriceLine(it.Product, it.Quantity))
	}
	return lines
}

// resolvePromo looks up and validates code. With reject unset an invalid
// code is logged and dropped instead of failing the request.
func resolvePromo(ctx context.Context, promos store.PromoStore, orders store.OrderStore, code, email string, subtotal decimal.Decimal, now time.Time, reject bool) (*domain.PromoCode, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return nil, nil
	}
	promo, err := promos.FindPromo(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find promo: %w", err)
	}
	var history domain.CustomerHistory
	if email != "" {
		history, err = orders.CustomerHistory(ctx, email, code)
		if err != nil {
			return nil, fmt.Errorf("customer history: %w", err)
		}
	}
	if err := pricing.ValidatePromo(promo, subtotal, history, now); err != nil {
		var pe *domain.PromoError
		if errors.As(err, &pe) && pe.Code == "" {
			pe.Code = code
		}
		if reject {
			return nil, err
		}
		zerolog.Ctx(ctx).Info().Str("promo_code", code).Err(err).Msg("dropping invalid promo code")
		return nil, nil
	}
	return promo, nil
}
