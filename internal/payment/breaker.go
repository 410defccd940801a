package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerProvider guards a Provider with a per-call timeout and a circuit
// breaker. Calls rejected by either surface as ErrUnavailable.
type BreakerProvider struct {
	next    Provider
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[Intent]
}

// NewBreakerProvider trips after five consecutive failures and probes again
// after thirty seconds.
func NewBreakerProvider(next Provider, timeout time.Duration, log zerolog.Logger) *BreakerProvider {
	cb := gobreaker.NewCircuitBreaker[Intent](gobreaker.Settings{
		Name:        "payment-provider",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// a missing intent is a caller error, not a provider fault
			return err == nil || errors.Is(err, ErrIntentNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &BreakerProvider{next: next, timeout: timeout, cb: cb}
}

func (b *BreakerProvider) CreateIntent(ctx context.Context, p IntentParams) (Intent, error) {
	return b.call(ctx, func(ctx context.Context) (Intent, error) {
		return b.next.CreateIntent(ctx, p)
	})
}

func (b *BreakerProvider) RetrieveIntent(ctx context.Context, id string) (Intent, error) {
	return b.call(ctx, func(ctx context.Context) (Intent, error) {
		return b.next.RetrieveIntent(ctx, id)
	})
}

func (b *BreakerProvider) call(ctx context.Context, fn func(context.Context) (Intent, error)) (Intent, error) {
	in, err := b.cb.Execute(func() (Intent, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return fn(callCtx)
	})
	switch {
	case err == nil:
		return in, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Intent{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return Intent{}, fmt.Errorf("%w: timed out after %s", ErrUnavailable, b.timeout)
	default:
		return Intent{}, err
	}
}

// State exposes the breaker state for health reporting.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}
