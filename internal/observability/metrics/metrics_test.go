package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/sessions":                              "/v1/sessions",
		"/v1/sessions/abc-123":                      "/v1/sessions/{session_id}",
		"/v1/sessions/abc-123/barcode":              "/v1/sessions/{session_id}/barcode",
		"/v1/sessions/abc-123/documents/invoice":    "/v1/sessions/{session_id}/documents/{document_type}",
		"/v1/sessions/abc-123/documents/airway_bill/camera": "/v1/sessions/{session_id}/documents/{document_type}/camera",
		"/healthz":                                  "/healthz",
	}
	for input, want := range cases {
		if got := normalizePath(input); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("receiving-api")
	handler := m.Middleware("receiving-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/confirm", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("receiving-api", http.MethodPost, "/v1/sessions/{session_id}/confirm", "409"))
	if got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}
}

func TestHandlerExposesSharedRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("receiving-api")
	v := NewVerificationMetrics("receiving-api", m.Registerer())
	v.SessionStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "receiving_verification_sessions_started_total") {
		t.Fatalf("expected verification metrics in exposition, got:\n%s", rec.Body.String())
	}
}

func TestVerificationMetricsObserveWorkflow(t *testing.T) {
	v := NewVerificationMetrics("receiving-api", prometheus.NewRegistry())

	v.RetrievalFinished(nil)
	v.RetrievalFinished(errors.New("boom"))
	v.VerdictReached(domain.Verdict{Passed: true, Slots: []domain.SlotResult{{Type: domain.DocumentInvoice, Score: 0.9}}})
	v.FieldMismatches([]domain.FieldMismatch{{Field: "invoice_number"}, {Field: "invoice_number"}})
	v.FinalizationFinished(errors.New("upstream"))
	v.OCRFinished(domain.DocumentAirwayBill, 150*time.Millisecond, nil)
	v.BreakerStateChanged("orders.lookup", gobreaker.StateClosed, gobreaker.StateOpen)

	if got := testutil.ToFloat64(v.retrievalsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed retrieval, got %v", got)
	}
	if got := testutil.ToFloat64(v.verdictsTotal.WithLabelValues("pass")); got != 1 {
		t.Fatalf("expected 1 passed verdict, got %v", got)
	}
	if got := testutil.ToFloat64(v.mismatchesTotal.WithLabelValues("invoice_number")); got != 2 {
		t.Fatalf("expected 2 invoice mismatches, got %v", got)
	}
	if got := testutil.ToFloat64(v.finalizationsTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed finalization, got %v", got)
	}
	if got := testutil.ToFloat64(v.breakerState.WithLabelValues("orders.lookup")); got != float64(gobreaker.StateOpen) {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}
	if got := testutil.CollectAndCount(v.ocrDuration); got != 1 {
		t.Fatalf("expected one ocr series, got %d", got)
	}
}

func TestWorkerMetricsTrackEvents(t *testing.T) {
	m := NewWorkerMetrics("receiving-worker")
	m.StartEvent()
	if got := testutil.ToFloat64(m.eventInFlight); got != 1 {
		t.Fatalf("expected 1 in-flight event, got %v", got)
	}
	m.FinishEvent("receiving-worker", 20*time.Millisecond, nil)
	m.ObserveEventLag("receiving-worker", -time.Second)
	m.ObserveEventLag("receiving-worker", 3*time.Second)

	if got := testutil.ToFloat64(m.eventInFlight); got != 0 {
		t.Fatalf("expected no in-flight events, got %v", got)
	}
	if got := testutil.ToFloat64(m.eventTotal.WithLabelValues("receiving-worker", "success")); got != 1 {
		t.Fatalf("expected 1 successful event, got %v", got)
	}
	if got := testutil.CollectAndCount(m.eventLag); got != 1 {
		t.Fatalf("expected one lag series, got %d", got)
	}
}
