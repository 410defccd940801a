package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatch struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestServerMetrics_OutcomeAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics("api", reg)

	m.Outcome("confirmed")
	m.Outcome("confirmed")
	m.Outcome("rejected")
	m.ObserveStage("commit", 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("rejected")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `checkout_api_outcomes_total{outcome="confirmed"} 2`)
}

func TestCloudWatchEmitter_FlushBatches(t *testing.T) {
	cw := &mockCloudWatch{}
	e := NewCloudWatchEmitter(cw, "Checkout", "api")

	require.NoError(t, e.Flush(context.Background()), "empty flush is a no-op")
	assert.Empty(t, cw.calls)

	e.Record("confirmed")
	e.Record("confirmed")
	e.Record("duplicate")
	require.NoError(t, e.Flush(context.Background()))
	require.Len(t, cw.calls, 1)
	assert.Equal(t, "Checkout", *cw.calls[0].Namespace)

	got := map[string]float64{}
	for _, d := range cw.calls[0].MetricData {
		for _, dim := range d.Dimensions {
			if *dim.Name == "Outcome" {
				got[*dim.Value] = *d.Value
			}
		}
	}
	assert.Equal(t, map[string]float64{"confirmed": 2, "duplicate": 1}, got)
}

func TestCloudWatchEmitter_FailedFlushKeepsCounts(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	e := NewCloudWatchEmitter(cw, "Checkout", "api")
	e.Record("confirmed")

	require.Error(t, e.Flush(context.Background()))

	cw.err = nil
	require.NoError(t, e.Flush(context.Background()))
	require.Len(t, cw.calls, 1)
	assert.Equal(t, 1.0, *cw.calls[0].MetricData[0].Value)
}

func TestCloudWatchEmitter_RunFlushesOnShutdown(t *testing.T) {
	cw := &mockCloudWatch{}
	e := NewCloudWatchEmitter(cw, "Checkout", "api")
	e.Record("confirmed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx, time.Hour))
	assert.Len(t, cw.calls, 1)
}

func TestRecorder_NilSinksAreSkipped(t *testing.T) {
	assert.NotPanics(t, func() {
		Recorder{}.CheckoutOutcome("confirmed")
		Recorder{}.StageDuration("commit", time.Millisecond)
	})
}
