package domain

import "time"

// Cart is keyed by an opaque session token owned by the session layer.
type Cart struct {
	ID         int64
	SessionKey string
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem is unique per (cart, product). Product is loaded alongside the row.
type CartItem struct {
	ID        int64
	CartID    int64
	ProductID int64
	Quantity  int
	Product   Product
}

// TotalItems sums quantities across lines.
func (c *Cart) TotalItems() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Item finds a line by id.
func (c *Cart) Item(id int64) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return CartItem{}, false
}

// ProductIDs returns the distinct product ids referenced by the cart.
func (c *Cart) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(c.Items))
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}
