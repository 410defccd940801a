package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/notify"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

// validateStep normalizes the form and loads the cart with an advisory stock check.
// An empty cart is rejected by idempotencyStep.
type validateStep struct {
	NextHandler
	store     store.Store
	validator *validatorv10.Validate
}

func (h *validateStep) Handle(cc *checkoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.Validate")
	defer span.End()
	cc.transition(StateValidating)

	cc.Form.Normalize()
	if cc.Form.ShippingMethod == "" {
		cc.Form.ShippingMethod = pricing.MethodStandard
	}
	if err := validation.Check(h.validator, &cc.Form); err != nil {
		span.SetStatus(codes.Error, "invalid form")
		return err
	}

	c, err := h.store.GetOrCreateCart(ctx, cc.Session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load cart: %w", err)
	}
	for _, it := range c.Items {
		if !it.Product.Purchasable() {
			return domain.NewValidationError("cart", fmt.Sprintf("%s is no longer available for purchase.", it.Product.Title))
		}
		if !it.Product.CanFulfil(it.Quantity) {
			return &domain.InsufficientStockError{
				ProductID: it.ProductID, Title: it.Product.Title, Requested: it.Quantity, Available: it.Product.StockQuantity,
			}
		}
	}
	cc.Cart = c
	span.SetAttributes(attribute.Int64("cart.id", c.ID), attribute.Int("cart.lines", len(c.Items)))
	return h.executeNext(cc)
}

// idempotencyStep claims the checkout key. A finished claim short-circuits the
// chain with the original order.
type idempotencyStep struct {
	NextHandler
	guard  Guard
	orders store.OrderStore
	window time.Duration
}

func (h *idempotencyStep) Handle(cc *checkoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.Idempotency")
	defer span.End()

	cc.Key = idempotency.Key(cc.Cart.ID, cc.Customer, cc.Now, h.window)
	cc.Log = cc.Log.With().Str("idempotency_key", cc.Key).Logger()
	span.SetAttributes(attribute.String("idempotency.key", cc.Key))

	// A committed order outlives its guard record.
	if o, err := h.orders.FindOrderByIdempotencyKey(ctx, cc.Key); err != nil {
		span.RecordError(err)
		return fmt.Errorf("find order by key: %w", err)
	} else if o != nil {
		suppress(cc, o)
		return nil
	}
	// Checked here so a resubmission after a successful commit, which
	// cleared the cart, still finds its order.
	if len(cc.Cart.Items) == 0 {
		return domain.ErrEmptyCart
	}

	claim, err := h.guard.Claim(ctx, cc.Key, fmt.Sprintf("cart:%d:%s", cc.Cart.ID, cc.Customer))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claim.Claimed {
		rec := claim.Existing
		if rec.Status == idempotency.StatusDone && rec.OrderNumber != "" {
			o, err := h.orders.GetOrder(ctx, rec.OrderNumber)
			if err != nil {
				return fmt.Errorf("load order %s: %w", rec.OrderNumber, err)
			}
			if o != nil {
				suppress(cc, o)
				return nil
			}
		}
		cc.Log.Info().Str("status", rec.Status).Msg("checkout already in flight")
		return &domain.DuplicateSubmissionError{OrderNumber: rec.OrderNumber, InFlight: true}
	}

	key := cc.Key
	cc.AddCompensation(func(ctx context.Context) {
		if err := h.guard.MarkFailed(ctx, key, "checkout rejected"); err != nil {
			cc.Log.Error().Err(err).Msg("failed to release idempotency key")
		}
	})
	return h.executeNext(cc)
}

// paymentStep confirms a client-side payment before any stock is touched.
type paymentStep struct {
	NextHandler
	provider payment.Provider
	orders   store.OrderStore
}

func (h *paymentStep) Handle(cc *checkoutContext) error {
	if cc.Form.PaymentIntentID == "" {
		return h.executeNext(cc)
	}
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.intent_id", cc.Form.PaymentIntentID))

	if h.provider == nil {
		return &domain.PaymentVerificationError{Reason: "card payments are not configured"}
	}
	in, err := h.provider.RetrieveIntent(ctx, cc.Form.PaymentIntentID)
	switch {
	case errors.Is(err, payment.ErrIntentNotFound):
		return &domain.PaymentVerificationError{Reason: "payment intent not found"}
	case errors.Is(err, payment.ErrUnavailable):
		span.RecordError(err)
		return &domain.PaymentVerificationError{Reason: "payment provider unavailable", Retryable: true}
	case err != nil:
		span.RecordError(err)
		return &domain.PaymentVerificationError{Reason: "could not verify payment", Retryable: true}
	}
	if !in.Succeeded() {
		return &domain.PaymentVerificationError{Reason: fmt.Sprintf("payment not completed (status %s)", in.Status)}
	}

	existing, err := h.orders.FindOrderByPaymentID(ctx, in.ID)
	if err != nil {
		return fmt.Errorf("find order by payment: %w", err)
	}
	if existing != nil {
		suppress(cc, existing)
		return nil
	}
	cc.Intent = &in
	return h.executeNext(cc)
}

// priceStep computes the authoritative quote from catalog prices.
type priceStep struct {
	NextHandler
	promos             store.PromoStore
	orders             store.OrderStore
	engine             *pricing.Engine
	rejectInvalidPromo bool
}

func (h *priceStep) Handle(cc *checkoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.Price")
	defer span.End()
	cc.transition(StatePricing)

	cc.Lines = priceLines(cc.Cart)
	promo, err := resolvePromo(ctx, h.promos, h.orders, cc.Form.PromoCode, cc.Form.Email,
		pricing.Summarize(cc.Lines).Subtotal, cc.Now, h.rejectInvalidPromo)
	if err != nil {
		return err
	}
	cc.Promo = promo

	q, err := h.engine.Quote(cc.Lines, cc.Form.ShippingMethod, cc.Form.Shipping.Region, promo)
	if err != nil {
		return domain.NewValidationError("shipping_method", "Please select a valid shipping method")
	}
	if cc.Intent != nil {
		if err := payment.VerifyIntent(*cc.Intent, q.TotalCents()); err != nil {
			return err
		}
	}
	cc.Quote = q
	cc.Result.Quote = &q
	span.SetAttributes(attribute.String("checkout.total", q.Total.StringFixed(2)))
	return h.executeNext(cc)
}

// commitStep reserves stock and writes the order in one transaction under
// row locks taken in ascending product id order.
type commitStep struct {
	NextHandler
	store  store.Store
	engine *pricing.Engine
}

func (h *commitStep) Handle(cc *checkoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.Commit")
	defer span.End()
	cc.transition(StateLocking)

	err := h.store.WithProductLocks(ctx, cc.Cart.ProductIDs(), func(tx store.Tx, locked map[int64]domain.Product) error {
		cc.transition(StateCommitting)

		// Prices may have moved since the quote; the locked rows win.
		lines := make([]pricing.Line, 0, len(cc.Cart.Items))
		for _, it := range cc.Cart.Items {
			p, ok := locked[it.ProductID]
			if !ok || !p.Purchasable() {
				return domain.NewValidationError("cart", fmt.Sprintf("%s is no longer available for purchase.", it.Product.Title))
			}
			lines = append(lines, pricing.PriceLine(p, it.Quantity))
		}
		q, err := h.engine.Quote(lines, cc.Form.ShippingMethod, cc.Form.Shipping.Region, cc.Promo)
		if err != nil {
			return err
		}
		if cc.Intent != nil && q.TotalCents() != cc.Intent.AmountCents {
			return &domain.PaymentVerificationError{Reason: "order total changed after payment"}
		}

		for _, it := range cc.Cart.Items {
			p := locked[it.ProductID]
			if !p.CanFulfil(it.Quantity) {
				return &domain.InsufficientStockError{
					ProductID: p.ID, Title: p.Title, Requested: it.Quantity, Available: p.StockQuantity,
				}
			}
			if err := tx.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		order := buildOrder(cc, q)
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if cc.Promo != nil && q.Discount.IsPositive() {
			if err := tx.IncrementPromoUsage(ctx, cc.Promo.ID); err != nil {
				return err
			}
		}
		if err := tx.ClearCart(ctx, cc.Cart.ID); err != nil {
			return err
		}
		cc.Quote = q
		cc.Result.Quote = &q
		cc.Order = order
		return nil
	})
	if err == nil {
		span.SetAttributes(attribute.String("order.number", cc.Order.OrderNumber))
		cc.Log = cc.Log.With().Str("order_number", cc.Order.OrderNumber).Logger()
		cc.Log.Info().Str("total", cc.Order.Total.StringFixed(2)).Msg("order committed")
		return h.executeNext(cc)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "commit failed")
	if domain.IsDomain(err) {
		return err
	}
	if errors.Is(err, store.ErrDuplicate) {
		o, ferr := h.store.FindOrderByIdempotencyKey(context.WithoutCancel(ctx), cc.Key)
		if ferr == nil && o != nil {
			suppress(cc, o)
			return nil
		}
		if cc.Intent != nil {
			if o, ferr := h.store.FindOrderByPaymentID(context.WithoutCancel(ctx), cc.Intent.ID); ferr == nil && o != nil {
				suppress(cc, o)
				return nil
			}
		}
	}
	cc.Log.Error().Err(err).
		Int64("cart_id", cc.Cart.ID).
		Str("email", cc.Form.Email).
		Str("total", cc.Quote.Total.StringFixed(2)).
		Msg("order commit failed")
	return &domain.PersistenceError{Op: "commit", Err: err}
}

func buildOrder(cc *checkoutContext, q pricing.Quote) *domain.Order {
	f := cc.Form
	o := &domain.Order{
		OrderNumber:    NewOrderNumber(cc.Now),
		CustomerID:     cc.Customer,
		IdempotencyKey: cc.Key,

		Email:       f.Email,
		FirstName:   f.FirstName,
		LastName:    f.LastName,
		CompanyName: f.CompanyName,
		Phone:       f.Phone,

		Shipping:              address(f.Shipping),
		ShippingMethod:        q.ShippingMethod.ID,
		ShippingETA:           q.ShippingMethod.ETA,
		BillingSameAsShipping: !f.BillingDifferent,
		Billing:               address(f.Billing),
		CustomerNotes:         f.CustomerNotes,

		Subtotal:     q.Totals.Subtotal,
		Discount:     q.Discount,
		ShippingCost: q.Shipping,
		Tax:          q.Tax,
		Total:        q.Total,
		PromoCode:    q.PromoCode,

		Status:        domain.OrderPending,
		PaymentStatus: domain.PaymentPending,
		PaymentMethod: "manual",
		CreatedAt:     cc.Now,
	}
	if cc.Intent != nil {
		o.PaymentStatus = domain.PaymentPaid
		o.PaymentMethod = "stripe"
		o.PaymentID = cc.Intent.ID
	}
	if q.Discount.IsZero() {
		o.PromoCode = ""
	}
	for _, l := range q.Lines {
		o.Items = append(o.Items, domain.OrderItem{
			ProductID:    l.ProductID,
			ProductTitle: l.Title,
			ProductSKU:   l.SKU,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			TotalPrice:   l.LineTotal,
		})
	}
	return o
}

func address(a validation.AddressInput) domain.Address {
	return domain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// notifyStep runs after the commit. Failures here mark the result degraded
// but never undo the order.
type notifyStep struct {
	NextHandler
	guard    Guard
	notifier notify.Notifier
	sessions SessionOrders
}

func (h *notifyStep) Handle(cc *checkoutContext) error {
	ctx, span := cc.Tracer.Start(cc.Ctx, "checkout.Notify")
	defer span.End()

	// The order exists now; nothing after this point may release the key.
	cc.ClearCompensations()
	cc.Result.Order = cc.Order

	if err := h.guard.MarkDone(ctx, cc.Key, cc.Order.OrderNumber); err != nil {
		degrade(cc, err, "failed to mark idempotency key done")
	}
	ev := notify.NewOrderConfirmed(cc.Order, cc.CorrelationID, cc.Now)
	if err := h.notifier.OrderConfirmed(ctx, ev); err != nil {
		span.RecordError(err)
		degrade(cc, err, "failed to publish order confirmation")
	}
	if h.sessions != nil {
		if err := h.sessions.Remember(ctx, cc.Session, cc.Order.OrderNumber); err != nil {
			degrade(cc, err, "failed to remember order for session")
		}
	}
	cc.transition(StateConfirmed)
	return h.executeNext(cc)
}

func degrade(cc *checkoutContext, err error, msg string) {
	cc.Result.Degraded = true
	cc.Log.Warn().Err(err).Msg(msg)
}

// suppress ends the chain with an order an earlier submission created.
func suppress(cc *checkoutContext, o *domain.Order) {
	cc.Result.Order = o
	cc.Result.Duplicate = true
	cc.transition(StateDuplicateSuppressed)
	cc.Log.Info().Str("order_number", o.OrderNumber).Msg("duplicate checkout suppressed")
}
