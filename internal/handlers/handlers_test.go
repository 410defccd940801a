package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/checkout"
	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/ratelimit"
	"github.com/imrishuroy/go-idempotent-checkout/internal/session"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/memory"
)

const adminToken = "s3cret"

type testServer struct {
	router *gin.Engine
	store  *memory.MemoryStore
}

func newTestServer(t *testing.T, mutate func(*HandlerConfig)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := memory.NewMemoryStore()
	memory.SeedDemo(s)
	engine := pricing.NewEngine(config.DefaultPricing())
	recent := session.NewMemoryRecentOrders(5, time.Hour)
	provider := payment.NewMemoryProvider(true)
	server := metrics.NewServerMetrics("test", prometheus.NewRegistry())

	co := checkout.NewService(checkout.Deps{
		Store:    s,
		Guard:    idempotency.NewMemoryStore(time.Hour),
		Engine:   engine,
		Payments: provider,
		Sessions: recent,
		Metrics:  metrics.Recorder{Server: server},
		Config:   config.Checkout{IdempotencyWindow: 5 * time.Minute, RejectInvalidPromo: true},
	})
	cfg := HandlerConfig{
		Cart:       cart.NewService(s, s, engine),
		Checkout:   co,
		Payments:   payment.NewService(provider, co, engine.Currency(), 5*time.Minute),
		Webhooks:   payment.NewReconciler(s, ""),
		Orders:     orders.NewService(s, recent),
		Metrics:    server,
		Logger:     zerolog.Nop(),
		AdminToken: adminToken,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return &testServer{router: NewRouter(cfg), store: s}
}

func (ts *testServer) do(t *testing.T, method, path, sess string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sess != "" {
		req.Header.Set(headerSession, sess)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func checkoutBody() map[string]any {
	return map[string]any{
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"email":      "ada@example.com",
		"phone":      "416-555-0100",
		"shipping": map[string]any{
			"address_1":   "1 King St W",
			"city":        "Toronto",
			"state":       "ON",
			"postal_code": "M5H 1A1",
		},
		"shipping_method": "standard",
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCart_AddAndView(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/cart/items", "", map[string]any{"product_id": 1, "quantity": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := w.Header().Get(headerSession)
	require.NotEmpty(t, sess, "a session is issued on first use")
	assert.Equal(t, "Minimum order quantity is 25 items. Quantity adjusted.", decode(t, w)["warning"])

	w = ts.do(t, http.MethodGet, "/cart", sess, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "25.00", body["subtotal"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.EqualValues(t, 25, items[0].(map[string]any)["quantity"])
}

func TestCart_ValidationAndStockErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/cart/items", "s1", map[string]any{"product_id": 2, "quantity": 13})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Sorry, only 12 items available in stock.", decode(t, w)["msg"])

	w = ts.do(t, http.MethodDelete, "/cart/items/abc", "s1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/cart/items/999", "s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckout_CreatesOrderOnceAndShowsItToTheSession(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/cart/items", "buyer", map[string]any{"product_id": 1, "quantity": 150}).Code)

	w := ts.do(t, http.MethodGet, "/checkout/quote?shipping_method=standard&region=ON", "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "160.60", decode(t, w)["total"])

	w = ts.do(t, http.MethodPost, "/checkout", "buyer", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode(t, w)
	number := first["order_number"].(string)
	assert.Equal(t, "/orders/"+number, w.Header().Get("Location"))
	assert.Equal(t, "160.60", first["order"].(map[string]any)["total"])

	w = ts.do(t, http.MethodPost, "/checkout", "buyer", checkoutBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := decode(t, w)
	assert.Equal(t, number, second["order_number"])
	assert.Equal(t, true, second["duplicate"])
	assert.Equal(t, 1, ts.store.OrderCount())

	w = ts.do(t, http.MethodGet, "/orders/"+number, "buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", decode(t, w)["email"])

	w = ts.do(t, http.MethodGet, "/orders/"+number, "stranger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"order_number": number}, decode(t, w))
}

func TestCheckout_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/checkout", "empty", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_cart", decode(t, w)["error"])

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/cart/items", "s", map[string]any{"product_id": 2, "quantity": 10}).Code)
	body := checkoutBody()
	body["promo_code"] = "SAVE10"
	w = ts.do(t, http.MethodPost, "/checkout", "s", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_promo", decode(t, w)["error"])

	require.NoError(t, ts.store.ReserveStock(testContext(t), 2, 5))
	w = ts.do(t, http.MethodPost, "/checkout", "s", checkoutBody())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "insufficient_stock", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/payments/confirm", "s", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "payment_intent_id")
}

func TestPayments_IntentThenConfirm(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/cart/items", "payer", map[string]any{"product_id": 1, "quantity": 150}).Code)

	w := ts.do(t, http.MethodPost, "/payments/intent", "payer", map[string]any{"email": "ada@example.com", "state": "ON"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	intent := decode(t, w)
	assert.EqualValues(t, 16060, intent["amount_cents"])

	body := checkoutBody()
	body["payment_intent_id"] = intent["payment_intent_id"]
	w = ts.do(t, http.MethodPost, "/payments/confirm", "payer", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)["order"].(map[string]any)
	assert.Equal(t, "paid", order["payment_status"])
}

func TestWebhook_NotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/payments/webhook", "", map[string]any{"id": "evt_1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminStatusAndCustomerCancel(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/cart/items", "c", map[string]any{"product_id": 2, "quantity": 4}).Code)
	w := ts.do(t, http.MethodPost, "/checkout", "c", checkoutBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	number := decode(t, w)["order_number"].(string)
	assert.Equal(t, 8, ts.store.Stock(2))

	path := "/admin/orders/" + number + "/status"
	w = ts.do(t, http.MethodPost, path, "", map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, path, "", map[string]any{"status": "delivered"}, headerAdminToken, adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, path, "", map[string]any{"status": "confirmed", "expected_status": "pending"}, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "confirmed", decode(t, w)["status"])

	w = ts.do(t, http.MethodPost, "/orders/"+number+"/cancel", "c", map[string]any{"email": "someone@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/orders/"+number+"/cancel", "c", map[string]any{"email": "ADA@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode(t, w)["status"])
	assert.Equal(t, 12, ts.store.Stock(2))
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ts := newTestServer(t, func(cfg *HandlerConfig) {
		cfg.CheckoutLimiter = ratelimit.New(client, "checkout", 1, time.Minute)
	})

	w := ts.do(t, http.MethodPost, "/checkout", "s", checkoutBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = ts.do(t, http.MethodPost, "/checkout", "s", checkoutBody())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/cart", "s", nil).Code, "cart routes use their own budget")
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/health", "", nil)

	w := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "checkout_test_http_requests_total")
}

// testContext returns a context that is canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
