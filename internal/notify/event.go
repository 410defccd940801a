// Package notify delivers post-commit order notifications. Publishing never
// affects the committed order; failures are reported to the caller to log.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

// OrderConfirmed is the message published once an order commits.
type OrderConfirmed struct {
	EventID        string    `json:"event_id"`
	OrderNumber    string    `json:"order_number"`
	Email          string    `json:"email"`
	Total          string    `json:"total"`
	IdempotencyKey string    `json:"idempotency_key"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewOrderConfirmed builds the event for a committed order.
func NewOrderConfirmed(o *domain.Order, correlationID string, now time.Time) OrderConfirmed {
	return OrderConfirmed{
		EventID:        uuid.NewString(),
		OrderNumber:    o.OrderNumber,
		Email:          o.Email,
		Total:          o.Total.StringFixed(2),
		IdempotencyKey: o.IdempotencyKey,
		CorrelationID:  correlationID,
		OccurredAt:     now.UTC(),
	}
}

// DecodeOrderConfirmed parses a queue message body.
func DecodeOrderConfirmed(body []byte) (OrderConfirmed, error) {
	var ev OrderConfirmed
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, err
	}
	if ev.OrderNumber == "" {
		return ev, errors.New("order_number is required")
	}
	return ev, nil
}

// Notifier publishes order events.
type Notifier interface {
	OrderConfirmed(ctx context.Context, ev OrderConfirmed) error
}

// Fanout publishes to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) OrderConfirmed(ctx context.Context, ev OrderConfirmed) error {
	var errs []error
	for _, n := range f {
		if err := n.OrderConfirmed(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) OrderConfirmed(context.Context, OrderConfirmed) error { return nil }
