package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrIllegalTransition = errors.New("illegal status transition")
)

// ValidationError carries per-field messages keyed by request field name.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InsufficientStockError reports the live stock seen when a reservation failed.
type InsufficientStockError struct {
	ProductID int64
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Sorry, only %d items available in stock.", e.Available)
}

// Promo rejection reasons shown to the customer.
const (
	ReasonInvalidPromo     = "invalid promo code"
	ReasonPromoInactive    = "this promo code is not active"
	ReasonPromoNotYetValid = "this promo code is not yet valid"
	ReasonPromoExpired     = "this promo code has expired"
	ReasonPromoUsageLimit  = "this promo code has reached its usage limit"
	ReasonPromoPerCustomer = "you have already used this promo code the maximum number of times"
	ReasonPromoFirstOrder  = "this promo code is only valid on a first order"
)

// PromoError is returned when a promo code cannot be applied.
type PromoError struct {
	Code   string
	Reason string
}

func (e *PromoError) Error() string {
	return fmt.Sprintf("promo %q: %s", e.Code, e.Reason)
}

// DuplicateSubmissionError means the checkout was already handled.
// InFlight is set while the first attempt has not finished.
type DuplicateSubmissionError struct {
	OrderNumber string
	InFlight    bool
}

func (e *DuplicateSubmissionError) Error() string {
	if e.InFlight {
		return "checkout already in progress"
	}
	return "order already placed: " + e.OrderNumber
}

// PaymentVerificationError is a payment that could not be confirmed.
type PaymentVerificationError struct {
	Reason    string
	Retryable bool
}

func (e *PaymentVerificationError) Error() string {
	return "payment verification failed: " + e.Reason
}

// PersistenceError hides storage details from customers. Unwrap exposes the cause.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "An error occurred while processing your order. Please try again."
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsDomain reports whether err is one of the typed checkout errors that
// should pass through to the caller unchanged.
func IsDomain(err error) bool {
	var (
		ve *ValidationError
		se *InsufficientStockError
		pe *PromoError
		de *DuplicateSubmissionError
		pv *PaymentVerificationError
	)
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &pe) ||
		errors.As(err, &de) || errors.As(err, &pv) ||
		errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrIllegalTransition)
}
