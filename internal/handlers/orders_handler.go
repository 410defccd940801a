package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

// getOrder returns the full order to the session that placed it and only
// the order number to anyone else.
func (h *handler) getOrder(c *gin.Context) {
	v, err := h.cfg.Orders.View(c.Request.Context(), c.Param("number"), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !v.Full {
		c.JSON(http.StatusOK, gin.H{"order_number": v.OrderNumber})
		return
	}
	c.JSON(http.StatusOK, toOrder(v.Order))
}

func (h *handler) cancelOrder(c *gin.Context) {
	var req validation.CancelRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.cfg.Orders.CustomerCancel(c.Request.Context(), c.Param("number"), req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(o))
}

func (h *handler) updateStatus(c *gin.Context) {
	var req validation.StatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.cfg.Orders.UpdateStatus(c.Request.Context(), c.Param("number"), orders.StatusChange{
		Expected:       domain.OrderStatus(req.Expected),
		Next:           domain.OrderStatus(req.Status),
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrder(o))
}
