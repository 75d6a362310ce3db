package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the KYC workflow.
// Tracks uploads, hash verifications, decisions and critical path durations.
type Metrics struct {
	UploadsTotal          *prometheus.CounterVec
	UploadBytes           prometheus.Histogram
	UploadDuration        prometheus.Histogram
	HashVerifications     *prometheus.CounterVec
	PermissionTransitions *prometheus.CounterVec
	KYCDecisions          *prometheus.CounterVec
	EventAppendFailures   prometheus.Counter
	EventPublishDropped   prometheus.Counter
}

// New registers workflow metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_uploads_total",
			Help: "Completed document uploads by document type",
		}, []string{"document_type"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_upload_bytes",
			Help:    "Size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(1<<10, 4, 8),
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycvault_upload_duration_seconds",
			Help:    "Duration of Upload operations including the content store call",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		HashVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_hash_verifications_total",
			Help: "Hash verifications by outcome",
		}, []string{"outcome"}),
		PermissionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_permission_transitions_total",
			Help: "Access permission transitions by resulting status",
		}, []string{"status"}),
		KYCDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kycvault_kyc_decisions_total",
			Help: "KYC approvals and rejections",
		}, []string{"decision"}),
		EventAppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_event_append_failures_total",
			Help: "Access-log appends that failed and triggered a rollback",
		}),
		EventPublishDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "kycvault_event_publish_dropped_total",
			Help: "Events that could not be handed to the publisher",
		}),
	}
}

// ObserveUpload records one accepted upload. Call with time.Now() at the start.
func (m *Metrics) ObserveUpload(documentType string, size int, start time.Time) {
	m.UploadsTotal.WithLabelValues(documentType).Inc()
	m.UploadBytes.Observe(float64(size))
	m.UploadDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementHashVerification(outcome string) {
	m.HashVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementPermissionTransition(status string) {
	m.PermissionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementKYCDecision(decision string) {
	m.KYCDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementEventAppendFailure() {
	m.EventAppendFailures.Inc()
}

func (m *Metrics) IncrementEventPublishDropped() {
	m.EventPublishDropped.Inc()
}
