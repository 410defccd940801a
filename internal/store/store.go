// Package store declares the persistence ports used by the checkout pipeline.
// Implementations live in store/mysql and store/memory.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = domain.ErrNotFound
	// ErrConditionFailed is returned when a conditional update matched no row.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("store: duplicate key")
)

type CatalogStore interface {
	// GetProduct loads a product with its tiers. Missing products return ErrNotFound.
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type CartStore interface {
	// GetOrCreateCart returns the session cart with items and products loaded.
	GetOrCreateCart(ctx context.Context, sessionKey string) (*domain.Cart, error)
	// AddCartItem adds qty to the (cart, product) line, creating it when absent.
	AddCartItem(ctx context.Context, cartID, productID int64, qty int) (*domain.CartItem, error)
	SetCartItemQuantity(ctx context.Context, cartID, itemID int64, qty int) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
}

type PromoStore interface {
	// FindPromo returns (nil, nil) when no promo has the code.
	FindPromo(ctx context.Context, code string) (*domain.PromoCode, error)
}

type OrderStore interface {
	// GetOrder returns (nil, nil) when the order does not exist.
	GetOrder(ctx context.Context, number string) (*domain.Order, error)
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*domain.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	CustomerHistory(ctx context.Context, email, promoCode string) (domain.CustomerHistory, error)
	// UpdatePaymentStatus is conditional on the current payment status.
	UpdatePaymentStatus(ctx context.Context, number string, expected, next domain.PaymentStatus) error
	// MarkNotified stamps notified_at once; a second call returns ErrConditionFailed.
	MarkNotified(ctx context.Context, number string, at time.Time) error
}

// Tx is the set of writes allowed inside a locked transaction.
type Tx interface {
	// ReserveStock decrements stock for a tracked product. It returns
	// *domain.InsufficientStockError when the live stock is too low.
	ReserveStock(ctx context.Context, productID int64, qty int) error
	RestockProduct(ctx context.Context, productID int64, qty int) error
	CreateOrder(ctx context.Context, order *domain.Order) error
	// IncrementPromoUsage fails with a usage-limit *domain.PromoError when the limit is reached.
	IncrementPromoUsage(ctx context.Context, promoID int64) error
	ClearCart(ctx context.Context, cartID int64) error
	GetOrderForUpdate(ctx context.Context, number string) (*domain.Order, error)
	// UpdateOrderStatus writes update when the stored status equals expected.
	UpdateOrderStatus(ctx context.Context, number string, expected domain.OrderStatus, update domain.StatusUpdate) error
}

// Store is the full persistence surface.
type Store interface {
	CatalogStore
	CartStore
	PromoStore
	OrderStore

	// ReserveStock runs a single reservation in its own transaction.
	ReserveStock(ctx context.Context, productID int64, qty int) error
	// WithProductLocks opens a transaction, locks the given products in
	// ascending id order and passes their locked state to fn. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithProductLocks(ctx context.Context, productIDs []int64, fn func(tx Tx, locked map[int64]domain.Product) error) error
	Close() error
}

// SortedIDs returns a sorted copy of ids with duplicates removed.
func SortedIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
