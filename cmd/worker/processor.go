package main

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// BodyProcessor handles one raw OrderConfirmed payload.
type BodyProcessor interface {
	ProcessBody(ctx context.Context, body []byte) error
}

// Processor adapts queue deliveries to a BodyProcessor.
type Processor struct {
	inner BodyProcessor
	log   zerolog.Logger
}

func NewProcessor(inner BodyProcessor, log zerolog.Logger) *Processor {
	return &Processor{inner: inner, log: log}
}

// Handle processes an SQS batch. Failed messages are reported individually
// so only they are redelivered and, after enough attempts, moved to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		log := p.log.With().Str("message_id", rec.MessageId).Logger()
		if attr, ok := rec.MessageAttributes["order_number"]; ok && attr.StringValue != nil {
			log = log.With().Str("order_number", *attr.StringValue).Logger()
		}
		if err := p.inner.ProcessBody(log.WithContext(ctx), []byte(rec.Body)); err != nil {
			log.Error().Err(err).Msg("notification failed")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	p.log.Info().Int("received", len(ev.Records)).Int("failed", len(resp.BatchItemFailures)).Msg("sqs batch processed")
	return resp, nil
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// retryDelay is the pause before a failed Kafka message is tried again.
var retryDelay = 5 * time.Second

// Consume reads r until ctx is cancelled. A message is committed only after
// it was processed, so a crash redelivers it.
func (p *Processor) Consume(ctx context.Context, r MessageReader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			p.log.Error().Err(err).Msg("could not read message, retrying")
			if !sleep(ctx, retryDelay) {
				return nil
			}
			continue
		}

		log := p.log.With().Str("order_number", string(msg.Key)).Int64("offset", msg.Offset).Logger()
		for {
			err := p.inner.ProcessBody(log.WithContext(ctx), msg.Value)
			if err == nil {
				break
			}
			log.Error().Err(err).Msg("notification failed, retrying")
			if !sleep(ctx, retryDelay) {
				return nil
			}
		}
		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("commit offset failed")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
