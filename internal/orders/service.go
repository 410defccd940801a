package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/session"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
	"github.com/imrishuroy/go-idempotent-checkout/internal/tracing"
)

// ErrStatusMismatch is returned when the stored status is not the one the
// caller expected, usually because a concurrent update won.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// ErrNotCancellable is returned when a customer tries to cancel an order that
// already entered fulfilment.
var ErrNotCancellable = errors.New("order can no longer be cancelled")

// Service applies lifecycle transitions on top of the transactional store.
type Service struct {
	store   store.Store
	recent  session.RecentOrders
	nowFunc func() time.Time
}

func NewService(s store.Store, recent session.RecentOrders) *Service {
	return &Service{store: s, recent: recent, nowFunc: time.Now}
}

// Get fetches an order by number. Missing orders return domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, number string) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", number, domain.ErrNotFound)
	}
	return o, nil
}

// FindOrderByPaymentID returns the order paid by the given intent, or nil.
func (s *Service) FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error) {
	return s.store.FindOrderByPaymentID(ctx, paymentID)
}

// View is what the confirmation page may show. Full is false when the
// requesting session did not place the order, in which case Order is nil.
type View struct {
	OrderNumber string
	Full        bool
	Order       *domain.Order
}

// View returns the full order only to the session that recently placed it.
func (s *Service) View(ctx context.Context, number, sessionKey string) (View, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return View{}, err
	}
	v := View{OrderNumber: o.OrderNumber}
	if s.recent == nil {
		return v, nil
	}
	owns, err := s.recent.Owns(ctx, sessionKey, number)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("order_number", number).Msg("recent orders lookup failed")
		return v, nil
	}
	if owns {
		v.Full = true
		v.Order = o
	}
	return v, nil
}

// StatusChange is a fulfilment transition request.
type StatusChange struct {
	// Expected is the status the caller saw. Empty means the current status.
	Expected       domain.OrderStatus
	Next           domain.OrderStatus
	TrackingNumber string
}

// UpdateStatus moves an order to change.Next. Cancelling restocks tracked
// products in the same transaction; refunding also refunds a paid payment.
func (s *Service) UpdateStatus(ctx context.Context, number string, change StatusChange) (*domain.Order, error) {
	ctx, span := tracing.Start(ctx, "orders.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", number), attribute.String("order.next_status", string(change.Next)))

	current, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	var lockIDs []int64
	if change.Next == domain.OrderCancelled {
		if lockIDs, err = s.restockableProducts(ctx, current.Items); err != nil {
			return nil, err
		}
	}

	var updated *domain.Order
	err = s.store.WithProductLocks(ctx, lockIDs, func(tx store.Tx, locked map[int64]domain.Product) error {
		o, err := tx.GetOrderForUpdate(ctx, number)
		if err != nil {
			return err
		}
		if o == nil {
			return fmt.Errorf("order %s: %w", number, domain.ErrNotFound)
		}
		expected := change.Expected
		if expected == "" {
			expected = o.Status
		}
		if o.Status != expected {
			return ErrStatusMismatch
		}
		if !CanTransition(o.Status, change.Next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, o.Status, change.Next)
		}

		now := s.nowFunc().UTC()
		u := domain.StatusUpdate{
			Status:         change.Next,
			PaymentStatus:  o.PaymentStatus,
			TrackingNumber: o.TrackingNumber,
			ShippedAt:      o.ShippedAt,
			DeliveredAt:    o.DeliveredAt,
			UpdatedAt:      now,
		}
		switch change.Next {
		case domain.OrderShipped:
			u.ShippedAt = &now
			if t := strings.TrimSpace(change.TrackingNumber); t != "" {
				u.TrackingNumber = t
			}
		case domain.OrderDelivered:
			u.DeliveredAt = &now
		case domain.OrderRefunded:
			if CanTransitionPayment(o.PaymentStatus, domain.PaymentRefunded) {
				u.PaymentStatus = domain.PaymentRefunded
			}
		}

		if err := tx.UpdateOrderStatus(ctx, number, expected, u); err != nil {
			if errors.Is(err, store.ErrConditionFailed) {
				return ErrStatusMismatch
			}
			return err
		}
		if change.Next == domain.OrderCancelled {
			for _, it := range o.Items {
				// deleted products have no stock to give back
				if _, ok := locked[it.ProductID]; !ok {
					continue
				}
				if err := tx.RestockProduct(ctx, it.ProductID, it.Quantity); err != nil {
					return err
				}
			}
		}

		o.Status = u.Status
		o.PaymentStatus = u.PaymentStatus
		o.TrackingNumber = u.TrackingNumber
		o.ShippedAt = u.ShippedAt
		o.DeliveredAt = u.DeliveredAt
		o.UpdatedAt = now
		updated = o
		return nil
	})
	if err != nil {
		// a commit-time recheck failure in the store surfaces as a condition failure
		if errors.Is(err, store.ErrConditionFailed) {
			err = ErrStatusMismatch
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("order_number", number).
		Str("from", string(current.Status)).
		Str("to", string(updated.Status)).
		Msg("order status updated")
	return updated, nil
}

// restockableProducts returns the ids of items whose product still exists.
func (s *Service) restockableProducts(ctx context.Context, items []domain.OrderItem) ([]int64, error) {
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if _, err := s.store.GetProduct(ctx, it.ProductID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		ids = append(ids, it.ProductID)
	}
	return ids, nil
}

// UpdatePaymentStatus moves the payment axis from expected to next.
func (s *Service) UpdatePaymentStatus(ctx context.Context, number string, expected, next domain.PaymentStatus) error {
	if !CanTransitionPayment(expected, next) {
		return fmt.Errorf("%w: payment %s -> %s", domain.ErrIllegalTransition, expected, next)
	}
	err := s.store.UpdatePaymentStatus(ctx, number, expected, next)
	if errors.Is(err, store.ErrConditionFailed) {
		return ErrStatusMismatch
	}
	return err
}

// CustomerCancel cancels an order on behalf of the customer whose email
// placed it. Only pending and confirmed orders qualify.
func (s *Service) CustomerCancel(ctx context.Context, number, email string) (*domain.Order, error) {
	o, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(email), o.Email) {
		// do not reveal that the order exists
		return nil, fmt.Errorf("order %s: %w", number, domain.ErrNotFound)
	}
	if !CustomerCancellable(o.Status) {
		return nil, ErrNotCancellable
	}
	return s.UpdateStatus(ctx, number, StatusChange{Expected: o.Status, Next: domain.OrderCancelled})
}
