// Package metrics exposes Prometheus collectors for the HTTP surface and the
// checkout pipeline, plus a CloudWatch emitter for checkout outcomes.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Checkouts *prometheus.CounterVec
	Stage     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewServerMetrics registers the collectors on reg. A nil reg uses the default registry.
func NewServerMetrics(service string, reg prometheus.Registerer) *ServerMetrics {
	service = strings.ReplaceAll(service, "-", "_")
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkout",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkout",
		Subsystem: service,
		Name:      "outcomes_total",
		Help:      "Checkout attempts by terminal state.",
	}, []string{"outcome"})
	stage := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkout",
		Subsystem: service,
		Name:      "stage_duration_ms",
		Help:      "Time spent in each checkout stage.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"stage"})

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	reg.MustRegister(requests, latency, checkouts, stage)
	return &ServerMetrics{
		Requests:  requests,
		LatencyMS: latency,
		Checkouts: checkouts,
		Stage:     stage,
		gatherer:  gatherer,
	}
}

// Outcome counts one finished checkout.
func (m *ServerMetrics) Outcome(outcome string) {
	m.Checkouts.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a checkout stage took.
func (m *ServerMetrics) ObserveStage(stage string, ms float64) {
	m.Stage.WithLabelValues(stage).Observe(ms)
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
