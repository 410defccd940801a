package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInner struct {
	mu       sync.Mutex
	bodies   []string
	failures map[string]int // body -> remaining failures
}

func (f *fakeInner) ProcessBody(_ context.Context, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))
	if f.failures[string(body)] > 0 {
		f.failures[string(body)]--
		return errors.New("mail relay down")
	}
	return nil
}

func TestHandle_ReportsOnlyFailedMessages(t *testing.T) {
	inner := &fakeInner{failures: map[string]int{"bad": 1}}
	p := NewProcessor(inner, zerolog.Nop())

	resp, err := p.Handle(testContext(t), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: "ok-1"},
		{MessageId: "m2", Body: "bad"},
		{MessageId: "m3", Body: "ok-2"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, []string{"ok-1", "bad", "ok-2"}, inner.bodies)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	r.done()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func TestConsume_RetriesThenCommits(t *testing.T) {
	prev := retryDelay
	retryDelay = time.Millisecond
	t.Cleanup(func() { retryDelay = prev })

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	inner := &fakeInner{failures: map[string]int{"flaky": 2}}
	r := &fakeReader{
		msgs: []kafka.Message{
			{Key: []byte("A-1"), Value: []byte("flaky"), Offset: 10},
			{Key: []byte("A-2"), Value: []byte("fine"), Offset: 11},
		},
		done: cancel,
	}

	err := NewProcessor(inner, zerolog.Nop()).Consume(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, r.committed)
	assert.Equal(t, []string{"flaky", "flaky", "flaky", "fine"}, inner.bodies)
}

func TestConsume_StopsWithoutCommittingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))

	inner := &fakeInner{failures: map[string]int{"stuck": 1000}}
	r := &fakeReader{
		msgs: []kafka.Message{{Value: []byte("stuck"), Offset: 3}},
		done: cancel,
	}
	time.AfterFunc(20*time.Millisecond, cancel)

	err := NewProcessor(inner, zerolog.Nop()).Consume(ctx, r)
	require.NoError(t, err)
	assert.Empty(t, r.committed)
}

// testContext returns a context that is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
