package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultWindow is the bucket width used when deriving keys.
const DefaultWindow = 5 * time.Minute

// Key derives the checkout key for a cart and customer. Submissions falling in
// the same window bucket produce the same key.
func Key(cartID int64, customer string, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = DefaultWindow
	}
	bucket := now.Unix() / int64(window/time.Second)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%d", cartID, customer, bucket)))
	return hex.EncodeToString(sum[:])[:32]
}
