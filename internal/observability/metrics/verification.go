package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// VerificationMetrics observes the verification workflow.
type VerificationMetrics struct {
	service string

	sessionsTotal      prometheus.Counter
	retrievalsTotal    *prometheus.CounterVec
	ocrDuration        *prometheus.HistogramVec
	verdictsTotal      *prometheus.CounterVec
	slotScores         *prometheus.HistogramVec
	mismatchesTotal    *prometheus.CounterVec
	finalizationsTotal *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewVerificationMetrics(service string, registerer prometheus.Registerer) *VerificationMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &VerificationMetrics{
		service: service,
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "sessions_started_total",
			Help:        "Verification sessions started.",
			ConstLabels: constLabels,
		}),
		retrievalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "order_retrievals_total",
			Help:        "Receiving order lookups by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		ocrDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "ocr_duration_seconds",
			Help:        "OCR duration per document type and status.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
			ConstLabels: constLabels,
		}, []string{"document_type", "status"}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "verdicts_total",
			Help:        "Verdicts reached by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		slotScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "similarity_score",
			Help:        "Similarity scores per document type.",
			Buckets:     []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			ConstLabels: constLabels,
		}, []string{"document_type"}),
		mismatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "field_mismatches_total",
			Help:        "Cross-document field mismatches by field.",
			ConstLabels: constLabels,
		}, []string{"field"}),
		finalizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "verification",
			Name:        "finalizations_total",
			Help:        "Order approvals by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			ConstLabels: constLabels,
		}, []string{"operation"}),
	}
	registerer.MustRegister(
		m.sessionsTotal,
		m.retrievalsTotal,
		m.ocrDuration,
		m.verdictsTotal,
		m.slotScores,
		m.mismatchesTotal,
		m.finalizationsTotal,
		m.breakerState,
	)
	return m
}

func (m *VerificationMetrics) SessionStarted() {
	m.sessionsTotal.Inc()
}

func (m *VerificationMetrics) RetrievalFinished(err error) {
	m.retrievalsTotal.WithLabelValues(statusOf(err)).Inc()
}

func (m *VerificationMetrics) OCRFinished(docType domain.DocumentType, duration time.Duration, err error) {
	m.ocrDuration.WithLabelValues(string(docType), statusOf(err)).Observe(duration.Seconds())
}

func (m *VerificationMetrics) VerdictReached(verdict domain.Verdict) {
	m.verdictsTotal.WithLabelValues(verdict.Outcome()).Inc()
	for _, slot := range verdict.Slots {
		m.slotScores.WithLabelValues(string(slot.Type)).Observe(slot.Score)
	}
}

func (m *VerificationMetrics) FieldMismatches(mismatches []domain.FieldMismatch) {
	for _, mismatch := range mismatches {
		m.mismatchesTotal.WithLabelValues(mismatch.Field).Inc()
	}
}

func (m *VerificationMetrics) FinalizationFinished(err error) {
	m.finalizationsTotal.WithLabelValues(statusOf(err)).Inc()
}

// BreakerStateChanged matches resilience.StateListener.
func (m *VerificationMetrics) BreakerStateChanged(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(operation).Set(float64(to))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
