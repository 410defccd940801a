package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-idempotent-checkout/internal/checkout"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

func (h *handler) quote(c *gin.Context) {
	q, _, err := h.cfg.Checkout.Quote(c.Request.Context(), checkout.QuoteRequest{
		Session:        sessionID(c),
		ShippingMethod: c.Query("shipping_method"),
		Region:         c.Query("region"),
		PromoCode:      c.Query("promo_code"),
		Email:          c.Query("email"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuote(q))
}

func (h *handler) checkout(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	h.runCheckout(c, req)
}

// runCheckout serves both the form checkout and the payment confirmation.
// The form is validated inside the pipeline after sanitising.
func (h *handler) runCheckout(c *gin.Context, req validation.CheckoutRequest) {
	res, err := h.cfg.Checkout.Checkout(c.Request.Context(), checkout.Request{
		Session:       sessionID(c),
		Form:          req,
		CorrelationID: c.Writer.Header().Get(headerRequestID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.Header("Location", "/orders/"+res.Order.OrderNumber)
	c.JSON(status, checkoutResponse(res))
}

func checkoutResponse(res *checkout.Result) gin.H {
	body := gin.H{
		"order_number": res.Order.OrderNumber,
		"state":        res.State,
		"duplicate":    res.Duplicate,
		"order":        toOrder(res.Order),
	}
	if res.Degraded {
		body["degraded"] = true
	}
	return body
}

func (h *handler) confirmPayment(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	if req.PaymentIntentID == "" {
		writeError(c, domain.NewValidationError("payment_intent_id", "is required"))
		return
	}
	h.runCheckout(c, req)
}
