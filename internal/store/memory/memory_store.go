// Package memory is an in-process implementation of store.Store used by
// tests and by STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

type cartItemRow struct {
	id        int64
	cartID    int64
	productID int64
	quantity  int
}

// MemoryStore keeps every table in maps guarded by mu. Product rows also have
// their own mutex so WithProductLocks can hold them for a whole transaction.
type MemoryStore struct {
	mu             sync.RWMutex
	products       map[int64]*domain.Product
	carts          map[int64]*domain.Cart
	cartsBySession map[string]int64
	items          map[int64]*cartItemRow
	promos         map[string]*domain.PromoCode
	orders         map[string]*domain.Order
	seq            int64
	now            func() time.Time

	lockMu   sync.Mutex
	rowLocks map[int64]*sync.Mutex
}

var _ store.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:       make(map[int64]*domain.Product),
		carts:          make(map[int64]*domain.Cart),
		cartsBySession: make(map[string]int64),
		items:          make(map[int64]*cartItemRow),
		promos:         make(map[string]*domain.PromoCode),
		orders:         make(map[string]*domain.Order),
		now:            time.Now,
		rowLocks:       make(map[int64]*sync.Mutex),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

// PutProduct inserts or replaces a product. A zero id is assigned.
func (s *MemoryStore) PutProduct(p domain.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	} else if p.ID > s.seq {
		s.seq = p.ID
	}
	cp := copyProduct(p)
	s.products[p.ID] = &cp
	return p.ID
}

// DeleteProduct removes a product from the catalog. Orders keep their
// snapshot of it.
func (s *MemoryStore) DeleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

// PutPromo inserts or replaces a promo keyed by its normalised code.
func (s *MemoryStore) PutPromo(p domain.PromoCode) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	p.Code = domain.NormalizeCode(p.Code)
	s.promos[p.Code] = &p
	return p.ID
}

// Stock returns the live stock of a product, for assertions.
func (s *MemoryStore) Stock(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[productID]; ok {
		return p.StockQuantity
	}
	return 0
}

// PromoUsage returns the live usage count of a promo, for assertions.
func (s *MemoryStore) PromoUsage(code string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.promos[domain.NormalizeCode(code)]; ok {
		return p.UsageCount
	}
	return 0
}

// OrderCount returns how many orders exist.
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	cp := copyProduct(*p)
	return &cp, nil
}

func (s *MemoryStore) GetOrCreateCart(_ context.Context, sessionKey string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cartsBySession[sessionKey]
	if !ok {
		now := s.now()
		id = s.nextID()
		s.carts[id] = &domain.Cart{ID: id, SessionKey: sessionKey, CreatedAt: now, UpdatedAt: now}
		s.cartsBySession[sessionKey] = id
	}
	return s.loadCart(id), nil
}

func (s *MemoryStore) loadCart(id int64) *domain.Cart {
	c := *s.carts[id]
	c.Items = nil
	for _, row := range s.items {
		if row.cartID != id {
			continue
		}
		item := domain.CartItem{ID: row.id, CartID: row.cartID, ProductID: row.productID, Quantity: row.quantity}
		if p, ok := s.products[row.productID]; ok {
			item.Product = copyProduct(*p)
		}
		c.Items = append(c.Items, item)
	}
	sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ID < c.Items[j].ID })
	return &c
}

func (s *MemoryStore) AddCartItem(_ context.Context, cartID, productID int64, qty int) (*domain.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cartID]; !ok {
		return nil, fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
	}
	var row *cartItemRow
	for _, r := range s.items {
		if r.cartID == cartID && r.productID == productID {
			row = r
			break
		}
	}
	if row == nil {
		row = &cartItemRow{id: s.nextID(), cartID: cartID, productID: productID}
		s.items[row.id] = row
	}
	row.quantity += qty
	s.carts[cartID].UpdatedAt = s.now()
	return &domain.CartItem{ID: row.id, CartID: cartID, ProductID: productID, Quantity: row.quantity, Product: copyProduct(*p)}, nil
}

func (s *MemoryStore) SetCartItemQuantity(_ context.Context, cartID, itemID int64, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.items[itemID]
	if !ok || row.cartID != cartID {
		return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}
	row.quantity = qty
	s.carts[cartID].UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) DeleteCartItem(_ context.Context, cartID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.items[itemID]
	if !ok || row.cartID != cartID {
		return fmt.Errorf("cart item %d: %w", itemID, store.ErrNotFound)
	}
	delete(s.items, itemID)
	return nil
}

func (s *MemoryStore) FindPromo(_ context.Context, code string) (*domain.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.promos[domain.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetOrder(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[number]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) FindOrderByPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	return s.findOrder(func(o *domain.Order) bool { return paymentID != "" && o.PaymentID == paymentID }), nil
}

func (s *MemoryStore) FindOrderByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	return s.findOrder(func(o *domain.Order) bool { return o.IdempotencyKey == key }), nil
}

func (s *MemoryStore) findOrder(match func(*domain.Order) bool) *domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if match(o) {
			return copyOrder(o)
		}
	}
	return nil
}

func (s *MemoryStore) CustomerHistory(_ context.Context, email, promoCode string) (domain.CustomerHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var h domain.CustomerHistory
	code := domain.NormalizeCode(promoCode)
	for _, o := range s.orders {
		if !strings.EqualFold(o.Email, email) {
			continue
		}
		h.Orders++
		if code != "" && o.PromoCode == code {
			h.CodeUses++
		}
	}
	return h, nil
}

func (s *MemoryStore) UpdatePaymentStatus(_ context.Context, number string, expected, next domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[number]
	if !ok || o.PaymentStatus != expected {
		return store.ErrConditionFailed
	}
	o.PaymentStatus = next
	o.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkNotified(_ context.Context, number string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[number]
	if !ok || o.NotifiedAt != nil {
		return store.ErrConditionFailed
	}
	o.NotifiedAt = &at
	return nil
}

func (s *MemoryStore) ReserveStock(ctx context.Context, productID int64, qty int) error {
	return s.WithProductLocks(ctx, []int64{productID}, func(tx store.Tx, _ map[int64]domain.Product) error {
		return tx.ReserveStock(ctx, productID, qty)
	})
}

func (s *MemoryStore) rowLock(id int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	m, ok := s.rowLocks[id]
	if !ok {
		m = &sync.Mutex{}
		s.rowLocks[id] = m
	}
	return m
}

func (s *MemoryStore) WithProductLocks(ctx context.Context, productIDs []int64, fn func(tx store.Tx, locked map[int64]domain.Product) error) error {
	ids := store.SortedIDs(productIDs)
	for _, id := range ids {
		m := s.rowLock(id)
		m.Lock()
		defer m.Unlock()
	}

	locked := make(map[int64]domain.Product, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok {
			s.mu.RUnlock()
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}
		locked[id] = copyProduct(*p)
	}
	s.mu.RUnlock()

	tx := newMemTx(s, locked)
	if err := fn(tx, locked); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func copyProduct(p domain.Product) domain.Product {
	if p.Tiers != nil {
		p.Tiers = append([]domain.TieredPrice(nil), p.Tiers...)
	}
	if p.Price != nil {
		price := *p.Price
		p.Price = &price
	}
	return p
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}
