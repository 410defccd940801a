package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
)

// PutMetricData accepts at most 1000 datums per call.
const maxDatums = 1000

// CloudWatchEmitter buffers checkout outcome counts and flushes them as
// custom metrics.
type CloudWatchEmitter struct {
	cw        aws.CloudWatchAPI
	namespace string
	service   string

	mu     sync.Mutex
	counts map[string]float64
}

func NewCloudWatchEmitter(cw aws.CloudWatchAPI, namespace, service string) *CloudWatchEmitter {
	return &CloudWatchEmitter{
		cw:        cw,
		namespace: namespace,
		service:   service,
		counts:    make(map[string]float64),
	}
}

// Record adds one occurrence of outcome to the next flush.
func (e *CloudWatchEmitter) Record(outcome string) {
	e.mu.Lock()
	e.counts[outcome]++
	e.mu.Unlock()
}

// Flush sends the buffered counts. Counts are dropped from the buffer only
// after a successful call.
func (e *CloudWatchEmitter) Flush(ctx context.Context) error {
	e.mu.Lock()
	if len(e.counts) == 0 {
		e.mu.Unlock()
		return nil
	}
	pending := e.counts
	e.counts = make(map[string]float64)
	e.mu.Unlock()

	now := time.Now().UTC()
	data := make([]cwtypes.MetricDatum, 0, len(pending))
	for outcome, n := range pending {
		data = append(data, cwtypes.MetricDatum{
			MetricName: awssdk.String("CheckoutOutcome"),
			Timestamp:  awssdk.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      awssdk.Float64(n),
			Dimensions: []cwtypes.Dimension{
				{Name: awssdk.String("Service"), Value: awssdk.String(e.service)},
				{Name: awssdk.String("Outcome"), Value: awssdk.String(outcome)},
			},
		})
	}

	for start := 0; start < len(data); start += maxDatums {
		end := min(start+maxDatums, len(data))
		_, err := e.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  awssdk.String(e.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			e.restore(pending)
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func (e *CloudWatchEmitter) restore(pending map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range pending {
		e.counts[k] += v
	}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (e *CloudWatchEmitter) Run(ctx context.Context, interval time.Duration) error {
	log := zerolog.Ctx(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := e.Flush(flushCtx); err != nil {
				log.Warn().Err(err).Msg("final metrics flush failed")
			}
			return nil
		case <-t.C:
			if err := e.Flush(ctx); err != nil {
				log.Warn().Err(err).Msg("metrics flush failed")
			}
		}
	}
}

// Recorder fans a checkout outcome out to Prometheus and, when set, CloudWatch.
type Recorder struct {
	Server     *ServerMetrics
	CloudWatch *CloudWatchEmitter
}

func (r Recorder) CheckoutOutcome(outcome string) {
	if r.Server != nil {
		r.Server.Outcome(outcome)
	}
	if r.CloudWatch != nil {
		r.CloudWatch.Record(outcome)
	}
}

func (r Recorder) StageDuration(stage string, d time.Duration) {
	if r.Server != nil {
		r.Server.ObserveStage(stage, float64(d.Microseconds())/1000)
	}
}
