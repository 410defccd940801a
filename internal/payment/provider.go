// Package payment talks to the card processor: intent creation, retrieval and
// webhook reconciliation.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// StatusSucceeded is the only intent status that allows an order to commit.
const StatusSucceeded = "succeeded"

var (
	// ErrUnavailable is returned when the processor timed out or the breaker is open.
	ErrUnavailable = errors.New("payment provider unavailable")
	// ErrIntentNotFound is returned when the processor has no intent with the id.
	ErrIntentNotFound = errors.New("payment intent not found")
)

// IntentParams describes an intent to create.
type IntentParams struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the provider-agnostic view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

// Succeeded reports whether funds were captured.
func (i Intent) Succeeded() bool { return i.Status == StatusSucceeded }

// Provider is a card processor.
type Provider interface {
	CreateIntent(ctx context.Context, p IntentParams) (Intent, error)
	RetrieveIntent(ctx context.Context, id string) (Intent, error)
}

// MemoryProvider is an in-process processor for local runs and tests. Intents
// created with the same idempotency key return the same intent.
type MemoryProvider struct {
	mu      sync.Mutex
	intents map[string]Intent
	byKey   map[string]string
	// AutoSucceed marks new intents succeeded, as if the card was charged.
	AutoSucceed bool
}

func NewMemoryProvider(autoSucceed bool) *MemoryProvider {
	return &MemoryProvider{
		intents:     make(map[string]Intent),
		byKey:       make(map[string]string),
		AutoSucceed: autoSucceed,
	}
}

func (m *MemoryProvider) CreateIntent(_ context.Context, p IntentParams) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return m.intents[id], nil
	}
	id := "pi_" + uuid.NewString()
	status := "requires_payment_method"
	if m.AutoSucceed {
		status = StatusSucceeded
	}
	in := Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       status,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Metadata:     p.Metadata,
	}
	m.intents[id] = in
	if p.IdempotencyKey != "" {
		m.byKey[p.IdempotencyKey] = id
	}
	return in, nil
}

func (m *MemoryProvider) RetrieveIntent(_ context.Context, id string) (Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.intents[id]
	if !ok {
		return Intent{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return in, nil
}

// SetStatus moves an intent to status, as the processor would after the
// customer completes or abandons payment.
func (m *MemoryProvider) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[id]; ok {
		in.Status = status
		m.intents[id] = in
	}
}
