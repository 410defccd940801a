// Package ratelimit implements a fixed-window request limiter on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision describes one limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter caps requests per key within a window.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// New returns a limiter allowing limit requests per window for each key.
func New(client *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one request for key. On a Redis error the request is allowed
// and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	windowEnd := time.Unix(0, (bucket+1)*int64(l.window))
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true, Remaining: l.limit}, fmt.Errorf("rate limit %s: %w", l.prefix, err)
	}

	count := int(incr.Val())
	return Decision{
		Allowed:   count <= l.limit,
		Remaining: max(l.limit-count, 0),
		ResetIn:   windowEnd.Sub(now),
	}, nil
}

// Limit is the configured request cap.
func (l *Limiter) Limit() int { return l.limit }
