// Package cart manages session carts: adding, changing and removing lines
// with advisory stock checks, and pricing the cart for display.
package cart

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
)

// MaxQuantity caps a single cart line.
const MaxQuantity = 9999

const notPurchasable = "This product is not available for purchase."

type Service struct {
	carts   store.CartStore
	catalog store.CatalogStore
	engine  *pricing.Engine
}

func NewService(carts store.CartStore, catalog store.CatalogStore, engine *pricing.Engine) *Service {
	return &Service{carts: carts, catalog: catalog, engine: engine}
}

// Line is a priced cart line.
type Line struct {
	ItemID int64 `json:"item_id"`
	pricing.Line
}

// View is the priced cart shown on the cart page.
type View struct {
	CartID          int64
	Lines           []Line
	Totals          pricing.Totals
	ShippingMethods []pricing.ShippingMethod
}

// Result describes a cart mutation.
type Result struct {
	Item       *domain.CartItem
	Removed    bool
	Warning    string
	TotalItems int
}

// Get returns the session cart, creating it on first use.
func (s *Service) Get(ctx context.Context, session string) (*domain.Cart, error) {
	c, err := s.carts.GetOrCreateCart(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return c, nil
}

// View prices every line at its current tier.
func (s *Service) View(ctx context.Context, session string) (*View, error) {
	c, err := s.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	v := &View{CartID: c.ID, Lines: make([]Line, 0, len(c.Items))}
	plain := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		pl := pricing.PriceLine(it.Product, it.Quantity)
		v.Lines = append(v.Lines, Line{ItemID: it.ID, Line: pl})
		plain = append(plain, pl)
	}
	v.Totals = pricing.Summarize(plain)
	v.ShippingMethods = s.engine.ShippingMethods(v.Totals.Subtotal)
	return v, nil
}

// Add puts qty units of a product in the cart, merging with an existing line.
// Quantities are clamped to 1..MaxQuantity and raised to the product minimum.
func (s *Service) Add(ctx context.Context, session string, productID int64, qty int) (*Result, error) {
	qty = max(1, min(qty, MaxQuantity))

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Purchasable() {
		return nil, domain.NewValidationError("product_id", notPurchasable)
	}

	res := &Result{}
	if p.MinimumOrder > 0 && qty < p.MinimumOrder {
		res.Warning = fmt.Sprintf("Minimum order quantity is %d items. Quantity adjusted.", p.MinimumOrder)
		qty = p.MinimumOrder
	}

	c, err := s.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	existing := 0
	for _, it := range c.Items {
		if it.ProductID == productID {
			existing = it.Quantity
		}
	}
	if existing+qty > MaxQuantity {
		return nil, domain.NewValidationError("quantity", fmt.Sprintf("Quantity cannot exceed %d.", MaxQuantity))
	}
	if !p.CanFulfil(existing + qty) {
		return nil, &domain.InsufficientStockError{
			ProductID: p.ID, Title: p.Title, Requested: existing + qty, Available: p.StockQuantity,
		}
	}

	item, err := s.carts.AddCartItem(ctx, c.ID, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}
	res.Item = item
	res.TotalItems = c.TotalItems() + qty

	zerolog.Ctx(ctx).Debug().Int64("cart_id", c.ID).Int64("product_id", productID).Int("quantity", item.Quantity).Msg("cart line added")
	return res, nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (s *Service) SetQuantity(ctx context.Context, session string, itemID int64, qty int) (*Result, error) {
	c, item, err := s.line(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, item, qty)
}

// Adjust moves a line's quantity by delta, removing it when it reaches zero.
func (s *Service) Adjust(ctx context.Context, session string, itemID int64, delta int) (*Result, error) {
	c, item, err := s.line(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, item, item.Quantity+delta)
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, session string, itemID int64) (*Result, error) {
	c, item, err := s.line(ctx, session, itemID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, c, item, 0)
}

func (s *Service) line(ctx context.Context, session string, itemID int64) (*domain.Cart, domain.CartItem, error) {
	c, err := s.Get(ctx, session)
	if err != nil {
		return nil, domain.CartItem{}, err
	}
	item, ok := c.Item(itemID)
	if !ok {
		return nil, domain.CartItem{}, fmt.Errorf("cart item %d: %w", itemID, domain.ErrNotFound)
	}
	return c, item, nil
}

func (s *Service) apply(ctx context.Context, c *domain.Cart, item domain.CartItem, qty int) (*Result, error) {
	if qty <= 0 {
		if err := s.carts.DeleteCartItem(ctx, c.ID, item.ID); err != nil {
			return nil, fmt.Errorf("delete cart item: %w", err)
		}
		return &Result{Removed: true, TotalItems: c.TotalItems() - item.Quantity}, nil
	}
	if qty > MaxQuantity {
		return nil, domain.NewValidationError("quantity", fmt.Sprintf("Quantity cannot exceed %d.", MaxQuantity))
	}
	if !item.Product.CanFulfil(qty) {
		return nil, &domain.InsufficientStockError{
			ProductID: item.ProductID, Title: item.Product.Title, Requested: qty, Available: item.Product.StockQuantity,
		}
	}
	if err := s.carts.SetCartItemQuantity(ctx, c.ID, item.ID, qty); err != nil {
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	item.Quantity, qty = qty, qty-item.Quantity
	return &Result{Item: &item, TotalItems: c.TotalItems() + qty}, nil
}
