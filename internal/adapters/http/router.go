package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/receiving-verifier/internal/adapters/http/openapi"
	"github.com/kirillkom/receiving-verifier/internal/config"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
	"github.com/kirillkom/receiving-verifier/internal/observability/metrics"
)

const serviceName = "receiving-api"

type Router struct {
	workflow ports.VerificationWorkflow
	report   ports.ReportRenderer
	doc      *openapi3.T
	logger   *slog.Logger
	metrics  *metrics.HTTPServerMetrics
	ready    func(context.Context) error

	apiKey           string
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	uploadMaxBytes   int64
}

type Option func(*Router)

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithReadiness installs the check answered by /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(rt *Router) {
		rt.ready = check
	}
}

func NewRouter(
	cfg config.Config,
	workflow ports.VerificationWorkflow,
	report ports.ReportRenderer,
	opts ...Option,
) (*Router, error) {
	doc, err := openapi.Load(context.Background())
	if err != nil {
		return nil, err
	}
	rt := &Router{
		workflow:         workflow,
		report:           report,
		doc:              doc,
		logger:           slog.Default(),
		apiKey:           cfg.APIKey,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		uploadMaxBytes:   cfg.UploadMaxBytes,
	}
	if rt.uploadMaxBytes <= 0 {
		rt.uploadMaxBytes = 20 << 20
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/sessions", rt.startSession)
	api.HandleFunc("GET /v1/sessions/{session_id}", rt.getSession)
	api.HandleFunc("DELETE /v1/sessions/{session_id}", rt.closeSession)
	api.HandleFunc("POST /v1/sessions/{session_id}/barcode", rt.submitBarcode)
	api.HandleFunc("PUT /v1/sessions/{session_id}/documents/{document_type}", rt.uploadDocument)
	api.HandleFunc("POST /v1/sessions/{session_id}/documents/{document_type}/camera", rt.startCamera)
	api.HandleFunc("POST /v1/sessions/{session_id}/camera/frame", rt.captureFrame)
	api.HandleFunc("POST /v1/sessions/{session_id}/camera/crop", rt.commitCrop)
	api.HandleFunc("DELETE /v1/sessions/{session_id}/camera", rt.cancelCapture)
	api.HandleFunc("POST /v1/sessions/{session_id}/confirm", rt.confirm)
	api.HandleFunc("POST /v1/sessions/{session_id}/finalize", rt.finalize)
	api.HandleFunc("POST /v1/sessions/{session_id}/reset", rt.resetSession)
	api.HandleFunc("GET /v1/sessions/{session_id}/report.xlsx", rt.downloadReport)

	var apiHandler http.Handler = api
	validated, err := openAPIValidationMiddleware(rt.doc, rt.logger, apiHandler)
	if err != nil {
		// The embedded document already passed validation in NewRouter.
		rt.logger.Error("openapi_validation_disabled", "error", err)
	} else {
		apiHandler = validated
	}
	apiHandler = apiKeyMiddleware(apiHandler, rt.apiKey)
	apiHandler = backpressureMiddlewareWithRecorder(apiHandler, rt.maxInFlight, rt.backpressureWait, rt.recordRejected)
	apiHandler = rateLimitMiddleware(apiHandler, rt.rateLimitRPS, rt.rateLimitBurst, rt.recordRejected)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	root.HandleFunc("GET /readyz", rt.readyz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", apiHandler)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.ready != nil {
		if err := rt.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := mapErrorToHTTPStatus(err); status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
