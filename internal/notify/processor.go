package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

// OrderReader is the slice of the order store the processor needs.
type OrderReader interface {
	GetOrder(ctx context.Context, number string) (*domain.Order, error)
	MarkNotified(ctx context.Context, number string, at time.Time) error
}

// Processor turns OrderConfirmed events into customer and admin emails.
type Processor struct {
	Orders     OrderReader
	Mailer     Mailer
	AdminEmail string
	Now        func() time.Time
}

// NewProcessor returns a Processor stamping notifications with the wall clock.
func NewProcessor(orders OrderReader, mailer Mailer, adminEmail string) *Processor {
	return &Processor{
		Orders:     orders,
		Mailer:     mailer,
		AdminEmail: adminEmail,
		Now:        time.Now,
	}
}

// Process handles one event. Orders that were already notified are skipped so
// redelivered messages are harmless.
func (p *Processor) Process(ctx context.Context, ev OrderConfirmed) error {
	log := zerolog.Ctx(ctx).With().Str("order_number", ev.OrderNumber).Logger()

	order, err := p.Orders.GetOrder(ctx, ev.OrderNumber)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNumber, err)
	}
	if order == nil {
		log.Warn().Msg("order not found; dropping notification")
		return nil
	}
	if order.NotifiedAt != nil {
		log.Debug().Time("notified_at", *order.NotifiedAt).Msg("already notified")
		return nil
	}

	customer, err := RenderCustomerEmail(order)
	if err != nil {
		return err
	}
	if err := p.Mailer.Send(ctx, customer); err != nil {
		return err
	}
	if p.AdminEmail != "" {
		admin, err := RenderAdminEmail(order, p.AdminEmail)
		if err != nil {
			return err
		}
		if err := p.Mailer.Send(ctx, admin); err != nil {
			return err
		}
	}

	err = p.Orders.MarkNotified(ctx, order.OrderNumber, p.Now().UTC())
	if errors.Is(err, store.ErrConditionFailed) {
		// a concurrent delivery stamped it first
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark notified %s: %w", order.OrderNumber, err)
	}
	log.Info().Msg("order notifications sent")
	return nil
}

// ProcessBody decodes a raw queue payload and processes it.
func (p *Processor) ProcessBody(ctx context.Context, body []byte) error {
	ev, err := DecodeOrderConfirmed(body)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return p.Process(ctx, ev)
}
