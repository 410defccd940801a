package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"github.com/imrishuroy/go-idempotent-checkout/internal/cart"
	"github.com/imrishuroy/go-idempotent-checkout/internal/checkout"
	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/handlers"
	"github.com/imrishuroy/go-idempotent-checkout/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/metrics"
	"github.com/imrishuroy/go-idempotent-checkout/internal/notify"
	"github.com/imrishuroy/go-idempotent-checkout/internal/orders"
	"github.com/imrishuroy/go-idempotent-checkout/internal/payment"
	"github.com/imrishuroy/go-idempotent-checkout/internal/pricing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/ratelimit"
	"github.com/imrishuroy/go-idempotent-checkout/internal/session"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/memory"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/mysql"
	"github.com/imrishuroy/go-idempotent-checkout/internal/tracing"
	"github.com/imrishuroy/go-idempotent-checkout/internal/validation"
)

type app struct {
	router  *gin.Engine
	emitter *metrics.CloudWatchEmitter
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("checkout-api", "info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Service, cfg.LogLevel)
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	a, err := build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.close()

	if !cfg.RunLocal {
		adapter := ginadapter.New(a.router)
		lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			resp, err := adapter.ProxyWithContext(ctx, req)
			if a.emitter != nil {
				if ferr := a.emitter.Flush(ctx); ferr != nil {
					log.Warn().Err(ferr).Msg("metrics flush failed")
				}
			}
			return resp, err
		})
		return
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("running local server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.emitter != nil {
		g.Go(func() error { return a.emitter.Run(gctx, cfg.AWS.MetricsInterval) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}

func build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}

	tp, err := tracing.InitTracerProvider(cfg.Service, cfg.JaegerURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	var clients *aws.AWSClients
	if cfg.AWS.IdempotencyTable != "" || cfg.AWS.QueueURL != "" || !cfg.RunLocal {
		clients, err = aws.NewAWSClients(ctx)
		if err != nil {
			return nil, err
		}
	}

	var guard checkout.Guard = idempotency.NewMemoryStore(cfg.Checkout.IdempotencyTTL)
	if cfg.AWS.IdempotencyTable != "" {
		guard = idempotency.NewStore(clients.DynamoDB, cfg.AWS.IdempotencyTable, cfg.Checkout.IdempotencyTTL)
	}

	notifier, closeNotifier := buildNotifier(cfg, clients, log)
	a.closers = append(a.closers, closeNotifier)

	var (
		recent          session.RecentOrders = session.NewMemoryRecentOrders(cfg.Checkout.RecentOrders, cfg.Checkout.RecentOrdersTTL)
		cartLimiter     *ratelimit.Limiter
		checkoutLimiter *ratelimit.Limiter
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		recent = session.NewRedisRecentOrders(rdb, cfg.Checkout.RecentOrders, cfg.Checkout.RecentOrdersTTL)
		cartLimiter = ratelimit.New(rdb, "cart", cfg.RateLimit.CartPerMinute, time.Minute)
		checkoutLimiter = ratelimit.New(rdb, "checkout", cfg.RateLimit.CheckoutPerMinute, time.Minute)
	} else {
		log.Warn().Msg("REDIS_ADDR not set; rate limiting disabled and recent orders kept in process")
	}

	provider, err := paymentProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	server := metrics.NewServerMetrics(cfg.Service, nil)
	recorder := metrics.Recorder{Server: server}
	if clients != nil {
		a.emitter = metrics.NewCloudWatchEmitter(clients.CloudWatch, cfg.AWS.MetricsNamespace, cfg.Service)
		recorder.CloudWatch = a.emitter
	}

	engine := pricing.NewEngine(cfg.Pricing)
	v := validation.New()
	checkoutSvc := checkout.NewService(checkout.Deps{
		Store:     st,
		Guard:     guard,
		Engine:    engine,
		Payments:  provider,
		Notifier:  notifier,
		Sessions:  recent,
		Metrics:   recorder,
		Validator: v,
		Config:    cfg.Checkout,
	})
	ordersSvc := orders.NewService(st, recent)

	a.router = handlers.NewRouter(handlers.HandlerConfig{
		Cart:            cart.NewService(st, st, engine),
		Checkout:        checkoutSvc,
		Payments:        payment.NewService(provider, checkoutSvc, engine.Currency(), cfg.Checkout.IdempotencyWindow),
		Webhooks:        payment.NewReconciler(ordersSvc, cfg.Stripe.WebhookSecret),
		Orders:          ordersSvc,
		Validator:       v,
		Metrics:         server,
		Logger:          log,
		CartLimiter:     cartLimiter,
		CheckoutLimiter: checkoutLimiter,
		AdminToken:      cfg.AdminKey,
	})
	return a, nil
}

// paymentProvider picks Stripe when a key is configured. The auto-approving
// in-memory provider is only allowed for local runs.
func paymentProvider(cfg config.Config, log zerolog.Logger) (payment.Provider, error) {
	var provider payment.Provider
	switch {
	case cfg.Stripe.SecretKey != "":
		provider = payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.Timeout)
	case cfg.RunLocal:
		log.Warn().Msg("STRIPE_SECRET_KEY not set; using in-memory payment provider")
		provider = payment.NewMemoryProvider(true)
	default:
		return nil, errors.New("STRIPE_SECRET_KEY is required unless RUN_LOCAL=true")
	}
	return payment.NewBreakerProvider(provider, cfg.Stripe.Timeout, log), nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		s := memory.NewMemoryStore()
		memory.SeedDemo(s)
		return s, nil
	}
	return mysql.Open(ctx, cfg.MySQL)
}

func buildNotifier(cfg config.Config, clients *aws.AWSClients, log zerolog.Logger) (notify.Notifier, func() error) {
	var (
		fan     notify.Fanout
		closeFn = func() error { return nil }
	)
	useSQS := cfg.Checkout.Notifier == "sqs" || cfg.Checkout.Notifier == "both"
	useKafka := cfg.Checkout.Notifier == "kafka" || cfg.Checkout.Notifier == "both"

	if useSQS {
		if clients == nil || cfg.AWS.QueueURL == "" {
			log.Warn().Msg("ORDERS_QUEUE_URL not set; sqs notifications disabled")
		} else {
			fan = append(fan, notify.NewSQSNotifier(clients.SQS, cfg.AWS.QueueURL))
		}
	}
	if useKafka {
		if len(cfg.Kafka.Brokers) == 0 {
			log.Warn().Msg("KAFKA_BROKERS not set; kafka notifications disabled")
		} else {
			w := notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic)
			fan = append(fan, notify.NewKafkaNotifier(w))
			closeFn = w.Close
		}
	}
	if len(fan) == 0 {
		return notify.Nop{}, closeFn
	}
	return fan, closeFn
}
