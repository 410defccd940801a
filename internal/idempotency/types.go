package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	Owner          string    `dynamodbav:"owner,omitempty"`        // cart and customer the key was derived from
	OrderNumber    string    `dynamodbav:"order_number,omitempty"` // set on DONE
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Claim is the outcome of trying to take ownership of a key. When Claimed is
// false, Existing holds the record that won.
type Claim struct {
	Claimed  bool
	Existing *Record
}
