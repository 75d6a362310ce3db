package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for content store calls.
type Metrics struct {
	CallDuration  *prometheus.HistogramVec
	CallErrors    *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	CircuitOpen   prometheus.Gauge
	CacheRequests *prometheus.CounterVec
}

// New registers content store metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycvault_content_call_duration_seconds",
			Help:    "Duration of content store calls including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		CallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_content_call_errors_total",
			Help: "Content store calls that failed after retries, by category",
		}, []string{"op", "category"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_content_retries_total",
			Help: "Retried content store attempts",
		}, []string{"op"}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kycvault_content_circuit_open",
			Help: "1 while the content store circuit breaker is open",
		}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_content_cache_requests_total",
			Help: "Content cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveCall records one logical call. Call with time.Now() at the start.
func (m *Metrics) ObserveCall(op string, start time.Time) {
	m.CallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementError(op, category string) {
	m.CallErrors.WithLabelValues(op, category).Inc()
}

func (m *Metrics) IncrementRetry(op string) {
	m.Retries.WithLabelValues(op).Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}

func (m *Metrics) IncrementCacheHit() {
	m.CacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) IncrementCacheMiss() {
	m.CacheRequests.WithLabelValues("miss").Inc()
}
