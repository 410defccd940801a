package memory

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

type statusWrite struct {
	number   string
	expected domain.OrderStatus
	update   domain.StatusUpdate
}

// memTx stages writes and applies them under the store mutex on commit, so a
// failed callback leaves no trace. Stock changes are only staged for rows the
// transaction holds a lock on.
type memTx struct {
	s        *MemoryStore
	locked   map[int64]domain.Product
	stock    map[int64]int
	orders   []*domain.Order
	promos   map[int64]int
	carts    []int64
	statuses []statusWrite
}

var _ store.Tx = (*memTx)(nil)

func newMemTx(s *MemoryStore, locked map[int64]domain.Product) *memTx {
	return &memTx{
		s:      s,
		locked: locked,
		stock:  make(map[int64]int),
		promos: make(map[int64]int),
	}
}

func (tx *memTx) ReserveStock(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve %d: quantity must be positive", productID)
	}
	p, ok := tx.locked[productID]
	if !ok {
		return fmt.Errorf("reserve %d: product not locked in this transaction", productID)
	}
	if !p.TrackInventory {
		return nil
	}
	available := p.StockQuantity + tx.stock[productID]
	if !p.AllowBackorder && available < qty {
		return &domain.InsufficientStockError{ProductID: productID, Title: p.Title, Requested: qty, Available: available}
	}
	tx.stock[productID] -= qty
	return nil
}

func (tx *memTx) RestockProduct(_ context.Context, productID int64, qty int) error {
	p, ok := tx.locked[productID]
	if !ok {
		return fmt.Errorf("restock %d: product not locked in this transaction", productID)
	}
	if p.TrackInventory {
		tx.stock[productID] += qty
	}
	return nil
}

func (tx *memTx) CreateOrder(_ context.Context, order *domain.Order) error {
	tx.s.mu.RLock()
	err := tx.s.checkUnique(order)
	tx.s.mu.RUnlock()
	if err != nil {
		return err
	}
	for _, staged := range tx.orders {
		if staged.OrderNumber == order.OrderNumber || staged.IdempotencyKey == order.IdempotencyKey {
			return store.ErrDuplicate
		}
	}
	tx.orders = append(tx.orders, order)
	return nil
}

func (tx *memTx) IncrementPromoUsage(_ context.Context, promoID int64) error {
	tx.s.mu.RLock()
	p := tx.s.promoByID(promoID)
	var err error
	switch {
	case p == nil:
		err = fmt.Errorf("promo %d: %w", promoID, store.ErrNotFound)
	case p.UsageLimit != nil && p.UsageCount+tx.promos[promoID] >= *p.UsageLimit:
		err = &domain.PromoError{Code: p.Code, Reason: domain.ReasonPromoUsageLimit}
	}
	tx.s.mu.RUnlock()
	if err != nil {
		return err
	}
	tx.promos[promoID]++
	return nil
}

func (tx *memTx) ClearCart(_ context.Context, cartID int64) error {
	tx.carts = append(tx.carts, cartID)
	return nil
}

func (tx *memTx) GetOrderForUpdate(_ context.Context, number string) (*domain.Order, error) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	o, ok := tx.s.orders[number]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (tx *memTx) UpdateOrderStatus(_ context.Context, number string, expected domain.OrderStatus, update domain.StatusUpdate) error {
	tx.s.mu.RLock()
	o, ok := tx.s.orders[number]
	matches := ok && o.Status == expected
	tx.s.mu.RUnlock()
	if !matches {
		return store.ErrConditionFailed
	}
	tx.statuses = append(tx.statuses, statusWrite{number: number, expected: expected, update: update})
	return nil
}

// commit re-checks every condition against the live maps and applies all
// staged writes, or none of them.
func (tx *memTx) commit() error {
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range tx.orders {
		if err := s.checkUnique(o); err != nil {
			return err
		}
	}
	for id, n := range tx.promos {
		p := s.promoByID(id)
		if p == nil {
			return fmt.Errorf("promo %d: %w", id, store.ErrNotFound)
		}
		if p.UsageLimit != nil && p.UsageCount+n > *p.UsageLimit {
			return &domain.PromoError{Code: p.Code, Reason: domain.ReasonPromoUsageLimit}
		}
	}
	for _, w := range tx.statuses {
		if o, ok := s.orders[w.number]; !ok || o.Status != w.expected {
			return store.ErrConditionFailed
		}
	}

	now := s.now()
	for id, delta := range tx.stock {
		if p, ok := s.products[id]; ok {
			p.StockQuantity += delta
			p.UpdatedAt = now
		}
	}
	for _, o := range tx.orders {
		o.ID = s.nextID()
		for i := range o.Items {
			o.Items[i].ID = s.nextID()
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		o.UpdatedAt = o.CreatedAt
		s.orders[o.OrderNumber] = copyOrder(o)
	}
	for id, n := range tx.promos {
		s.promoByID(id).UsageCount += n
	}
	for _, cartID := range tx.carts {
		for itemID, row := range s.items {
			if row.cartID == cartID {
				delete(s.items, itemID)
			}
		}
	}
	for _, w := range tx.statuses {
		o := s.orders[w.number]
		o.Status = w.update.Status
		o.PaymentStatus = w.update.PaymentStatus
		o.TrackingNumber = w.update.TrackingNumber
		o.ShippedAt = w.update.ShippedAt
		o.DeliveredAt = w.update.DeliveredAt
		o.UpdatedAt = w.update.UpdatedAt
	}
	return nil
}

func (s *MemoryStore) checkUnique(o *domain.Order) error {
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber || existing.IdempotencyKey == o.IdempotencyKey ||
			(o.PaymentID != "" && existing.PaymentID == o.PaymentID) {
			return fmt.Errorf("order %s: %w", o.OrderNumber, store.ErrDuplicate)
		}
	}
	return nil
}

func (s *MemoryStore) promoByID(id int64) *domain.PromoCode {
	for _, p := range s.promos {
		if p.ID == id {
			return p
		}
	}
	return nil
}
