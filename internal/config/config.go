package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is built once at startup and passed to constructors.
type Config struct {
	Service   string
	HTTPAddr  string
	RunLocal  bool
	LogLevel  string
	AdminKey  string
	JaegerURL string

	StoreDriver string // "mysql" or "memory"
	MySQL       MySQL
	AWS         AWS
	Kafka       Kafka
	Redis       Redis
	Stripe      Stripe
	Checkout    Checkout
	RateLimit   RateLimit
	Worker      Worker
	Pricing     Pricing
}

type MySQL struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Migrate      bool
}

type AWS struct {
	IdempotencyTable string
	QueueURL         string
	MetricsNamespace string
	MetricsInterval  time.Duration
}

type Kafka struct {
	Brokers    []string
	OrderTopic string
	EmailTopic string
	GroupID    string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Stripe struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type Checkout struct {
	IdempotencyWindow  time.Duration
	IdempotencyTTL     time.Duration
	RejectInvalidPromo bool
	Notifier           string // "sqs", "kafka", "both" or "none"
	AdminEmail         string
	RecentOrders       int
	RecentOrdersTTL    time.Duration
}

type RateLimit struct {
	CartPerMinute     int
	CheckoutPerMinute int
}

type Worker struct {
	Source string // "sqs" or "kafka"
}

// Load reads the environment. PRICING_FILE, when set, overlays the default pricing table.
func Load() (Config, error) {
	cfg := Config{
		Service:   getEnv("SERVICE_NAME", "checkout-api"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		RunLocal:  os.Getenv("RUN_LOCAL") == "true",
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		AdminKey:  os.Getenv("ADMIN_TOKEN"),
		JaegerURL: os.Getenv("JAEGER_ENDPOINT"),

		StoreDriver: getEnv("STORE_DRIVER", "mysql"),
		MySQL: MySQL{
			DSN:          getEnv("MYSQL_DSN", "checkout:checkout@tcp(localhost:3306)/checkout"),
			MaxOpenConns: getInt("MYSQL_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getInt("MYSQL_MAX_IDLE_CONNS", 5),
			Migrate:      getBool("MYSQL_MIGRATE", true),
		},
		AWS: AWS{
			IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
			QueueURL:         os.Getenv("ORDERS_QUEUE_URL"),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", "Checkout"),
			MetricsInterval:  getDuration("METRICS_FLUSH_INTERVAL", time.Minute),
		},
		Kafka: Kafka{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			OrderTopic: getEnv("KAFKA_ORDER_TOPIC", "order-confirmed"),
			EmailTopic: getEnv("KAFKA_EMAIL_TOPIC", "email-outbound"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "checkout-worker"),
		},
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Stripe: Stripe{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Timeout:       getDuration("STRIPE_TIMEOUT", 10*time.Second),
		},
		Checkout: Checkout{
			IdempotencyWindow:  getDuration("IDEMPOTENCY_WINDOW", 5*time.Minute),
			IdempotencyTTL:     getDuration("IDEMPOTENCY_TTL", 48*time.Hour),
			RejectInvalidPromo: getBool("REJECT_INVALID_PROMO", true),
			Notifier:           getEnv("NOTIFIER", "sqs"),
			AdminEmail:         os.Getenv("ADMIN_EMAIL"),
			RecentOrders:       getInt("RECENT_ORDERS", 5),
			RecentOrdersTTL:    getDuration("RECENT_ORDERS_TTL", 30*time.Minute),
		},
		RateLimit: RateLimit{
			CartPerMinute:     getInt("RATE_LIMIT_CART", 30),
			CheckoutPerMinute: getInt("RATE_LIMIT_CHECKOUT", 10),
		},
		Worker: Worker{
			Source: getEnv("WORKER_SOURCE", "sqs"),
		},
		Pricing: DefaultPricing(),
	}

	if path := os.Getenv("PRICING_FILE"); path != "" {
		p, err := LoadPricingFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Pricing = p
	}

	switch cfg.StoreDriver {
	case "mysql", "memory":
	default:
		return cfg, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	switch cfg.Checkout.Notifier {
	case "sqs", "kafka", "both", "none":
	default:
		return cfg, fmt.Errorf("config: unknown NOTIFIER %q", cfg.Checkout.Notifier)
	}
	if cfg.Checkout.IdempotencyWindow <= 0 {
		return cfg, fmt.Errorf("config: IDEMPOTENCY_WINDOW must be positive")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
