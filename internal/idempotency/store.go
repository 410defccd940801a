package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
)

const (
	condCreate     = "attribute_not_exists(idempotency_key) OR expires_at < :now"
	condInProgress = "#s = :inprogress"
	condFailed     = "#s = :failed"
)

// ErrConditionFailed indicates a conditional write failed
var ErrConditionFailed = errors.New("conditional check failed")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a record survives before DynamoDB TTL removes it
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow is the TTL written on every record (e.g. 48*time.Hour).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Claim takes ownership of key. An existing FAILED record is re-claimed so
// the customer can retry; any other existing record is returned to the caller.
func (s *Store) Claim(ctx context.Context, key, owner string) (Claim, error) {
	created, err := s.CreateIfNotExists(ctx, key, owner)
	if err != nil {
		return Claim{}, err
	}
	if created {
		return Claim{Claimed: true}, nil
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		return Claim{}, err
	}
	if rec == nil {
		return Claim{}, fmt.Errorf("idempotency record %s vanished after conditional failure", key)
	}
	if rec.Status != StatusFailed {
		return Claim{Existing: rec}, nil
	}

	err = s.reclaim(ctx, key)
	if err == nil {
		return Claim{Claimed: true}, nil
	}
	if !errors.Is(err, ErrConditionFailed) {
		return Claim{}, err
	}
	// another retry re-claimed it first
	rec, err = s.Get(ctx, key)
	if err != nil {
		return Claim{}, err
	}
	return Claim{Existing: rec}, nil
}

// CreateIfNotExists creates an IN_PROGRESS record if the key does not exist
// or has outlived its TTL but was not swept yet.
// Returns (created=false, nil) if a live record already exists.
func (s *Store) CreateIfNotExists(ctx context.Context, key, owner string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Owner:          owner,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condCreate),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	if _, err = s.client.PutItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyAttr(key),
		ConsistentRead: awsBool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone moves an IN_PROGRESS record to DONE and records the order number.
func (s *Store) MarkDone(ctx context.Context, key, orderNumber string) error {
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyAttr(key),
		UpdateExpression:    awsString("SET #s = :done, order_number = :order, updated_at = :ua"),
		ConditionExpression: awsString(condInProgress),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":       &types.AttributeValueMemberS{Value: StatusDone},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":order":      &types.AttributeValueMemberS{Value: orderNumber},
			":ua":         &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks an IN_PROGRESS record as FAILED so the key can be retried.
// A record that already reached DONE is left untouched.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyAttr(key),
		UpdateExpression:    awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ConditionExpression: awsString(condInProgress),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":n":          &types.AttributeValueMemberS{Value: note},
			":ua":         &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func (s *Store) reclaim(ctx context.Context, key string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 keyAttr(key),
		UpdateExpression:    awsString("SET #s = :inprogress, updated_at = :ua, expires_at = :exp REMOVE note"),
		ConditionExpression: awsString(condFailed),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":exp":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (reclaim): %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Helper
func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
