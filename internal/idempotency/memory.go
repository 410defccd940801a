package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local guard with the same semantics as Store.
// Used for local runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

func NewMemoryStore(ttlWindow time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (m *MemoryStore) Claim(_ context.Context, key, owner string) (Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	rec, ok := m.records[key]
	switch {
	case !ok || rec.ExpiresAt < now.Unix():
		m.records[key] = &Record{
			IdempotencyKey: key,
			Status:         StatusInProgress,
			Owner:          owner,
			CreatedAt:      now,
			UpdatedAt:      now,
			ExpiresAt:      now.Add(m.ttlWindow).Unix(),
		}
		return Claim{Claimed: true}, nil
	case rec.Status == StatusFailed:
		rec.Status = StatusInProgress
		rec.Note = ""
		rec.UpdatedAt = now
		rec.ExpiresAt = now.Add(m.ttlWindow).Unix()
		return Claim{Claimed: true}, nil
	}
	cp := *rec
	return Claim{Existing: &cp}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) MarkDone(_ context.Context, key, orderNumber string) error {
	return m.transition(key, func(rec *Record) {
		rec.Status = StatusDone
		rec.OrderNumber = orderNumber
	})
}

func (m *MemoryStore) MarkFailed(_ context.Context, key, note string) error {
	return m.transition(key, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Note = note
	})
}

func (m *MemoryStore) transition(key string, apply func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || rec.Status != StatusInProgress {
		return ErrConditionFailed
	}
	apply(rec)
	rec.UpdatedAt = m.nowFunc()
	return nil
}
