// Package orders owns the order lifecycle after commit: fulfilment and
// payment transitions, customer cancellation and the confirmation view.
package orders

import "github.com/imrishuroy/go-idempotent-checkout/internal/domain"

var fulfilment = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderPending:    {domain.OrderConfirmed, domain.OrderCancelled, domain.OrderRefunded},
	domain.OrderConfirmed:  {domain.OrderProcessing, domain.OrderCancelled, domain.OrderRefunded},
	domain.OrderProcessing: {domain.OrderShipped, domain.OrderCancelled, domain.OrderRefunded},
	domain.OrderShipped:    {domain.OrderDelivered, domain.OrderCancelled, domain.OrderRefunded},
}

var payments = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentPending: {domain.PaymentPaid, domain.PaymentFailed},
	domain.PaymentPaid:    {domain.PaymentRefunded},
}

// CanTransition reports whether the fulfilment status may move from -> to.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, s := range fulfilment[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether the payment status may move from -> to.
func CanTransitionPayment(from, to domain.PaymentStatus) bool {
	for _, s := range payments[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CustomerCancellable is true while the order has not entered fulfilment.
func CustomerCancellable(s domain.OrderStatus) bool {
	return s == domain.OrderPending || s == domain.OrderConfirmed
}
