package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/domain"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

func (h *handler) getCart(c *gin.Context) {
	v, err := h.cfg.Cart.View(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCart(v))
}

func (h *handler) addItem(c *gin.Context) {
	var req validation.AddItemRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.cfg.Cart.Add(c.Request.Context(), sessionID(c), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMutation(res))
}

func (h *handler) setQuantity(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req validation.SetQuantityRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(svc *cart.Service) (*cart.Result, error) {
		return svc.SetQuantity(c.Request.Context(), sessionID(c), id, req.Quantity)
	})
}

func (h *handler) adjustItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req validation.AdjustRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	h.mutate(c, func(svc *cart.Service) (*cart.Result, error) {
		return svc.Adjust(c.Request.Context(), sessionID(c), id, req.Delta)
	})
}

func (h *handler) removeItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	h.mutate(c, func(svc *cart.Service) (*cart.Result, error) {
		return svc.Remove(c.Request.Context(), sessionID(c), id)
	})
}

func (h *handler) mutate(c *gin.Context, fn func(*cart.Service) (*cart.Result, error)) {
	res, err := fn(h.cfg.Cart)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMutation(res))
}

func itemID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, domain.NewValidationError("id", "invalid cart item id"))
		return 0, false
	}
	return id, true
}
