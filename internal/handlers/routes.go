package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/checkout"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/ratelimit"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

// HandlerConfig groups dependencies for the HTTP surface. Limiters and
// Metrics may be nil.
type HandlerConfig struct {
	Cart      *cart.Service
	Checkout  *checkout.Service
	Payments  *payment.Service
	Webhooks  *payment.Reconciler
	Orders    *orders.Service
	Validator *validatorv10.Validate
	Metrics   *metrics.ServerMetrics
	Logger    zerolog.Logger

	CartLimiter     *ratelimit.Limiter
	CheckoutLimiter *ratelimit.Limiter
	AdminToken      string
}

// NewRouter builds the gin engine with middleware and every route registered.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRoutes(r, cfg)
	return r
}

// RegisterRoutes registers the cart, checkout, payment and order routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}
	h := &handler{cfg: cfg, v: cfg.Validator}

	shop := r.Group("/", Session())
	{
		carts := shop.Group("/cart", RateLimit(cfg.CartLimiter))
		carts.GET("", h.getCart)
		carts.POST("/items", h.addItem)
		carts.PUT("/items/:id", h.setQuantity)
		carts.PATCH("/items/:id", h.adjustItem)
		carts.DELETE("/items/:id", h.removeItem)

		shop.GET("/checkout/quote", h.quote)
		shop.POST("/checkout", RateLimit(cfg.CheckoutLimiter), h.checkout)

		shop.POST("/payments/intent", RateLimit(cfg.CheckoutLimiter), h.createIntent)
		shop.POST("/payments/confirm", RateLimit(cfg.CheckoutLimiter), h.confirmPayment)

		shop.GET("/orders/:number", h.getOrder)
		shop.POST("/orders/:number/cancel", h.cancelOrder)
	}

	r.POST("/payments/webhook", h.webhook)
	r.POST("/admin/orders/:number/status", AdminOnly(cfg.AdminToken), h.updateStatus)
}

type handler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
}
