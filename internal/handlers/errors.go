package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
)

// writeError maps a service error onto a status code and a stable error body.
func writeError(c *gin.Context, err error) {
	var (
		ve *domain.ValidationError
		se *domain.InsufficientStockError
		pe *domain.PromoError
		de *domain.DuplicateSubmissionError
		pv *domain.PaymentVerificationError
		ps *domain.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": ve.Fields})
	case errors.Is(err, domain.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart", "msg": "Your cart is empty."})
	case errors.As(err, &se):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "insufficient_stock",
			"msg":        se.Error(),
			"product_id": se.ProductID,
			"available":  se.Available,
		})
	case errors.As(err, &pe):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid_promo", "code": pe.Code, "msg": pe.Reason})
	case errors.As(err, &de):
		c.JSON(http.StatusConflict, gin.H{"error": "submission_in_flight", "msg": "Your order is already being processed."})
	case errors.As(err, &pv):
		status := http.StatusPaymentRequired
		if pv.Retryable {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "payment_failed", "msg": pv.Reason, "retryable": pv.Retryable})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, orders.ErrNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": "not_cancellable", "msg": err.Error()})
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()})
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
	case errors.Is(err, payment.ErrWebhookNotConfigured), errors.Is(err, payment.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
	case errors.As(err, &ps):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "internal", "msg": ps.Error(), "retryable": true})
	default:
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "msg": "An unexpected error occurred."})
	}
}
