// Package checkout turns a session cart into a committed order exactly once.
//
// A checkout runs as a chain of steps: validate the form and cart, claim the
// idempotency key, verify payment, price on the server, commit under row
// locks, then notify. Steps that acquire something register a compensation
// that runs when a later step fails. Everything after the commit is
// best-effort and never undoes the order.
package checkout

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
)

// State is a checkout attempt's position in the pipeline.
type State string

const (
	StateValidating          State = "validating"
	StatePricing             State = "pricing"
	StateLocking             State = "locking"
	StateCommitting          State = "committing"
	StateConfirmed           State = "confirmed"
	StateRejected            State = "rejected"
	StateDuplicateSuppressed State = "duplicate_suppressed"
)

// Result is the outcome of Checkout. On a suppressed duplicate, Order is the
// order the earlier submission created.
type Result struct {
	State       State
	Order       *domain.Order
	Quote       *pricing.Quote
	Duplicate   bool
	Degraded    bool
	Transitions []State
}

// NewOrderNumber returns ORD-YYYYMMDD-XXXXXX for now.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}
