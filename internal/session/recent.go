// Package session tracks the orders a browser session placed recently, which
// gates the full order confirmation view.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecentOrders records and checks order numbers per session.
type RecentOrders interface {
	Remember(ctx context.Context, session, orderNumber string) error
	Owns(ctx context.Context, session, orderNumber string) (bool, error)
}

// RedisRecentOrders keeps the newest orders per session in a capped list.
type RedisRecentOrders struct {
	client *redis.Client
	size   int
	ttl    time.Duration
}

func NewRedisRecentOrders(client *redis.Client, size int, ttl time.Duration) *RedisRecentOrders {
	return &RedisRecentOrders{client: client, size: size, ttl: ttl}
}

func (r *RedisRecentOrders) Remember(ctx context.Context, session, orderNumber string) error {
	key := recentKey(session)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, key, 0, orderNumber)
		pipe.LPush(ctx, key, orderNumber)
		pipe.LTrim(ctx, key, 0, int64(r.size-1))
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remember order: %w", err)
	}
	return nil
}

func (r *RedisRecentOrders) Owns(ctx context.Context, session, orderNumber string) (bool, error) {
	if session == "" {
		return false, nil
	}
	numbers, err := r.client.LRange(ctx, recentKey(session), 0, int64(r.size-1)).Result()
	if err != nil {
		return false, fmt.Errorf("recent orders: %w", err)
	}
	return slices.Contains(numbers, orderNumber), nil
}

func recentKey(session string) string {
	return fmt.Sprintf("session:%s:recent_orders", session)
}

// MemoryRecentOrders is the single-process implementation used in local mode.
type MemoryRecentOrders struct {
	mu      sync.Mutex
	size    int
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	numbers   []string
	expiresAt time.Time
}

func NewMemoryRecentOrders(size int, ttl time.Duration) *MemoryRecentOrders {
	return &MemoryRecentOrders{size: size, ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryRecentOrders) Remember(_ context.Context, session, orderNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(session)
	numbers := []string{orderNumber}
	for _, n := range e.numbers {
		if n != orderNumber {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) > m.size {
		numbers = numbers[:m.size]
	}
	m.entries[session] = memoryEntry{numbers: numbers, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryRecentOrders) Owns(_ context.Context, session, orderNumber string) (bool, error) {
	if session == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.live(session).numbers, orderNumber), nil
}

func (m *MemoryRecentOrders) live(session string) memoryEntry {
	e, ok := m.entries[session]
	if !ok || m.now().After(e.expiresAt) {
		return memoryEntry{}
	}
	return e
}
