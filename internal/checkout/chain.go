package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

// checkoutContext carries one attempt through the handler chain.
type checkoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer
	Log    zerolog.Logger
	Now    time.Time

	Session       string
	Customer      string
	CorrelationID string
	Form          validation.CheckoutRequest

	Cart   *domain.Cart
	Key    string
	Intent *payment.Intent
	Promo  *domain.PromoCode
	Lines  []pricing.Line
	Quote  pricing.Quote
	Order  *domain.Order

	Result *Result

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation registers an undo action; later registrations run first.
func (c *checkoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *checkoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	c.Log.Info().Int("compensations", len(c.compensations)).Msg("running checkout compensations")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

// ClearCompensations drops every registered undo action.
func (c *checkoutContext) ClearCompensations() {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = nil
}

func (c *checkoutContext) transition(s State) {
	c.Result.State = s
	c.Result.Transitions = append(c.Result.Transitions, s)
	c.Log.Debug().Str("state", string(s)).Msg("checkout state")
}

// Handler is one step of the checkout chain.
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(cc *checkoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(cc *checkoutContext) error {
	if h.next != nil {
		return h.next.Handle(cc)
	}
	return nil
}
