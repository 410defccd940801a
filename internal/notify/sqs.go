package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
)

// SQSNotifier sends order events to an SQS queue consumed by the worker.
type SQSNotifier struct {
	SQS      aws.SQSAPI
	QueueURL string
}

// NewSQSNotifier returns a notifier bound to a queue URL.
func NewSQSNotifier(client aws.SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{SQS: client, QueueURL: queueURL}
}

func (p *SQSNotifier) OrderConfirmed(ctx context.Context, ev OrderConfirmed) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.send(ctx, string(body), map[string]string{
		"event_type":      "order.confirmed",
		"order_number":    ev.OrderNumber,
		"idempotency_key": ev.IdempotencyKey,
	})
}

func (p *SQSNotifier) send(ctx context.Context, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &body,
	}
	if len(attributes) > 0 {
		msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			if v == "" {
				continue
			}
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
