package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/config"
	"github.com/imrishuroy/go-idempotent-checkout/internal/logging"
	"github.com/imrishuroy/go-idempotent-checkout/internal/notify"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/memory"
	"github.com/imrishuroy/go-idempotent-checkout/internal/store/mysql"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("checkout-worker", "info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New("checkout-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	orders, closeStore := openOrders(ctx, cfg, log)
	defer closeStore()

	var mailer notify.Mailer = logMailer{log: log}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EmailTopic)
		defer w.Close()
		mailer = notify.NewKafkaMailer(w)
	}
	p := NewProcessor(notify.NewProcessor(orders, mailer, cfg.Checkout.AdminEmail), log)

	switch cfg.Worker.Source {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			log.Fatal().Msg("WORKER_SOURCE=kafka needs KAFKA_BROKERS")
		}
		r := notify.NewReader(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, cfg.Kafka.GroupID)
		defer r.Close()
		log.Info().Str("topic", cfg.Kafka.OrderTopic).Msg("consuming order events")
		if err := p.Consume(ctx, r); err != nil {
			log.Fatal().Err(err).Msg("consumer stopped")
		}
	default:
		if cfg.RunLocal {
			runLocal(ctx, p, log)
			return
		}
		lambda.Start(p.Handle)
	}
}

// runLocal feeds one simulated SQS message through the handler.
func runLocal(ctx context.Context, p *Processor, log zerolog.Logger) {
	body := os.Getenv("LOCAL_SQS_BODY")
	if body == "" {
		body = `{"order_number":"LOCAL-1"}`
	}
	resp, err := p.Handle(ctx, events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
	})
	if err != nil || len(resp.BatchItemFailures) > 0 {
		log.Fatal().Err(err).Int("failed", len(resp.BatchItemFailures)).Msg("local handler error")
	}
}

func openOrders(ctx context.Context, cfg config.Config, log zerolog.Logger) (notify.OrderReader, func()) {
	if cfg.StoreDriver == "memory" {
		s := memory.NewMemoryStore()
		memory.SeedDemo(s)
		return s, func() {}
	}
	s, err := mysql.Open(ctx, cfg.MySQL)
	if err != nil {
		log.Fatal().Err(err).Msg("open mysql")
	}
	return s, func() { _ = s.Close() }
}

// logMailer stands in when no Kafka cluster is configured.
type logMailer struct {
	log zerolog.Logger
}

func (m logMailer) Send(_ context.Context, e notify.Email) error {
	m.log.Info().Str("to", e.To).Str("subject", e.Subject).Msg("email (not sent)")
	return nil
}
