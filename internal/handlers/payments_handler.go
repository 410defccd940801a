package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

// maxWebhookBody caps webhook payloads.
const maxWebhookBody = 65536

func (h *handler) createIntent(c *gin.Context) {
	var req validation.IntentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	resp, err := h.cfg.Payments.CreateIntent(c.Request.Context(), payment.IntentRequest{
		Session:        sessionID(c),
		Customer:       req.Email,
		ShippingMethod: req.ShippingMethod,
		Region:         req.Region,
		PromoCode:      req.PromoCode,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_intent_id": resp.IntentID,
		"client_secret":     resp.ClientSecret,
		"amount_cents":      resp.Quote.TotalCents(),
		"quote":             toQuote(&resp.Quote),
	})
}

func (h *handler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}
	outcome, err := h.cfg.Webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("webhook rejected")
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
