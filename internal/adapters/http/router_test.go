package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/receiving-verifier/internal/config"
	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/observability/metrics"
)

type workflowFake struct {
	err error

	gotOperator domain.Operator
	gotBarcode  string
	gotDocType  domain.DocumentType
	gotFilename string
	gotBody     string
	gotRegion   *domain.Region
	gotComments string
	verdict     *domain.Verdict
}

func (f *workflowFake) session(id string) *domain.Session {
	return domain.NewSession(id, domain.Operator{UserID: "operator-1"}, time.Unix(1700000000, 0).UTC())
}

func (f *workflowFake) StartSession(_ context.Context, operator domain.Operator) (*domain.Session, error) {
	f.gotOperator = operator
	if f.err != nil {
		return nil, f.err
	}
	return f.session("s-1"), nil
}

func (f *workflowFake) Session(_ context.Context, sessionID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) SubmitBarcode(_ context.Context, sessionID, barcode string) (*domain.Session, error) {
	f.gotBarcode = barcode
	if f.err != nil {
		return nil, f.err
	}
	s := f.session(sessionID)
	s.Stage = domain.StageUpload
	s.Barcode = barcode
	s.OrderID = "ORD-1"
	return s, nil
}

func (f *workflowFake) UploadDocument(_ context.Context, sessionID string, docType domain.DocumentType, filename, _ string, body io.Reader) (*domain.Session, error) {
	f.gotDocType = docType
	f.gotFilename = filename
	raw, _ := io.ReadAll(body)
	f.gotBody = string(raw)
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) StartCamera(_ context.Context, sessionID string, docType domain.DocumentType) (*domain.Session, error) {
	f.gotDocType = docType
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) CaptureFrame(context.Context, string) (*domain.Frame, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Frame{Width: 100, Height: 50, DefaultCrop: domain.Region{X: 10, Y: 5, Width: 80, Height: 40}}, nil
}

func (f *workflowFake) CommitCrop(_ context.Context, sessionID string, region *domain.Region) (*domain.Session, error) {
	f.gotRegion = region
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) CancelCapture(_ context.Context, sessionID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) Confirm(context.Context, string) (*domain.Verdict, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.verdict != nil {
		return f.verdict, nil
	}
	return &domain.Verdict{Passed: true}, nil
}

func (f *workflowFake) Finalize(_ context.Context, sessionID, comments string) (*domain.Session, error) {
	f.gotComments = comments
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) Reset(_ context.Context, sessionID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session(sessionID), nil
}

func (f *workflowFake) Close(context.Context, string) error {
	return f.err
}

type reportFake struct{}

func (reportFake) ContentType() string { return "application/test-report" }

func (reportFake) Render(session *domain.Session, w io.Writer) error {
	_, err := io.WriteString(w, "report:"+session.ID)
	return err
}

func newTestHandler(t *testing.T, cfg config.Config, workflow *workflowFake, opts ...Option) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, workflow, reportFake{}, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", res.Body.String(), err)
	}
	return body
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{})
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{}, WithReadiness(func(context.Context) error {
		return errors.New("order api circuit open")
	}))
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestStartSessionUsesOperatorHeader(t *testing.T) {
	workflow := &workflowFake{}
	handler := newTestHandler(t, config.Config{}, workflow)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set(userIDHeader, "operator-7")
	res := serve(handler, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if workflow.gotOperator.UserID != "operator-7" {
		t.Fatalf("expected operator-7, got %q", workflow.gotOperator.UserID)
	}
}

func TestStartSessionWithoutOperatorIsRejectedByContract(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{})
	res := serve(handler, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "invalid_input" {
		t.Fatalf("expected invalid_input, got %q", body.Code)
	}
}

func TestSubmitBarcodeMapsMissingBarcode(t *testing.T) {
	workflow := &workflowFake{err: domain.WrapError(domain.ErrMissingBarcode, "submit barcode", errors.New("barcode is empty"))}
	handler := newTestHandler(t, config.Config{}, workflow)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/barcode", strings.NewReader(`{"barcode":""}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(handler, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "missing_barcode" {
		t.Fatalf("expected missing_barcode, got %q", body.Code)
	}
}

func TestSubmitBarcodeRetrievalFailureIsBadGateway(t *testing.T) {
	inner := domain.WrapError(domain.ErrTemporary, "orders.lookup", errors.New("503"))
	workflow := &workflowFake{err: domain.WrapError(domain.ErrRetrievalFailed, "submit barcode", inner)}
	handler := newTestHandler(t, config.Config{}, workflow)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/barcode", strings.NewReader(`{"barcode":"BC12345"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(handler, req)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	if workflow.gotBarcode != "BC12345" {
		t.Fatalf("expected barcode to reach workflow, got %q", workflow.gotBarcode)
	}
}

func TestUploadDocumentPassesFileToWorkflow(t *testing.T) {
	workflow := &workflowFake{}
	handler := newTestHandler(t, config.Config{}, workflow)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "invoice.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("image-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/s-1/documents/invoice", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := serve(handler, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if workflow.gotDocType != domain.DocumentInvoice || workflow.gotFilename != "invoice.png" || workflow.gotBody != "image-bytes" {
		t.Fatalf("unexpected upload input: %s %s %q", workflow.gotDocType, workflow.gotFilename, workflow.gotBody)
	}
}

func TestStartCameraRejectsUnknownDocumentType(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/documents/packing_list/camera", nil)
	res := serve(handler, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCommitCropAcceptsEmptyBodyAsDefaultRegion(t *testing.T) {
	workflow := &workflowFake{}
	handler := newTestHandler(t, config.Config{}, workflow)

	res := serve(handler, httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/camera/crop", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if workflow.gotRegion != nil {
		t.Fatalf("expected nil region, got %+v", workflow.gotRegion)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/camera/crop", strings.NewReader(`{"region":{"x":1,"y":2,"width":30,"height":40}}`))
	req.Header.Set("Content-Type", "application/json")
	res = serve(handler, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if workflow.gotRegion == nil || workflow.gotRegion.Width != 30 {
		t.Fatalf("unexpected region %+v", workflow.gotRegion)
	}
}

func TestConfirmFieldMismatchReturns422WithPairs(t *testing.T) {
	mismatches := []domain.FieldMismatch{{
		Field:       "invoice_number",
		Source:      domain.DocumentInvoice,
		Target:      domain.DocumentBillOfEntry,
		SourceValue: "INV-2024-0007",
		TargetValue: "INV-2024-0008",
		Reason:      "invoice number differs",
	}}
	workflow := &workflowFake{err: fmt.Errorf("confirm: %w", &domain.FieldMismatchError{Mismatches: mismatches})}
	handler := newTestHandler(t, config.Config{}, workflow)

	res := serve(handler, httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/confirm", nil))
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	body := decodeError(t, res)
	if body.Code != "field_mismatch" || len(body.Mismatches) != 1 || body.Mismatches[0].TargetValue != "INV-2024-0008" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestFinalizeWithoutOrderReturnsConflict(t *testing.T) {
	workflow := &workflowFake{err: domain.WrapError(domain.ErrMissingOrderID, "finalize", errors.New("no order"))}
	handler := newTestHandler(t, config.Config{}, workflow)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/s-1/finalize", strings.NewReader(`{"comments":"all good"}`))
	req.Header.Set("Content-Type", "application/json")
	res := serve(handler, req)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	if body := decodeError(t, res); body.Code != "missing_order_id" {
		t.Fatalf("expected missing_order_id, got %q", body.Code)
	}
	if workflow.gotComments != "all good" {
		t.Fatalf("expected comments to reach workflow, got %q", workflow.gotComments)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	workflow := &workflowFake{err: domain.WrapError(domain.ErrSessionNotFound, "lookup", errors.New("id=missing"))}
	handler := newTestHandler(t, config.Config{}, workflow)
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestCloseSessionReturnsNoContent(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{})
	res := serve(handler, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s-1", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}

func TestDownloadReport(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{})
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-9/report.xlsx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("Content-Type") != "application/test-report" {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "verification-s-9.xlsx") {
		t.Fatalf("unexpected disposition %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.String() != "report:s-9" {
		t.Fatalf("unexpected report body %q", res.Body.String())
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &workflowFake{err: errors.New("db password is hunter2")})
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "hunter2") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestAPIKeyProtectsSessionRoutes(t *testing.T) {
	handler := newTestHandler(t, config.Config{APIKey: "secret"}, &workflowFake{})

	res := serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if res := serve(handler, req); res.Code != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d", res.Code)
	}

	if res := serve(handler, httptest.NewRequest(http.MethodGet, "/healthz", nil)); res.Code != http.StatusOK {
		t.Fatalf("expected healthz to stay public, got %d", res.Code)
	}
}

func TestMetricsEndpointExposesRequests(t *testing.T) {
	m := metrics.NewHTTPServerMetrics(serviceName)
	handler := newTestHandler(t, config.Config{}, &workflowFake{}, WithMetrics(m))

	serve(handler, httptest.NewRequest(http.MethodGet, "/v1/sessions/s-1", nil))
	res := serve(handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `path="/v1/sessions/{session_id}"`) {
		t.Fatalf("expected normalized session path in metrics, got:\n%s", res.Body.String())
	}
}

func TestMapErrorToHTTPStatusPrefersWorkflowKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrFinalizationFailed, "finalize", domain.WrapError(domain.ErrInvalidInput, "orders.update_status", errors.New("400"))), http.StatusBadGateway},
		{domain.WrapError(domain.ErrCameraUnavailable, "start camera", errors.New("denied")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrSessionBusy, "confirm", errors.New("busy")), http.StatusConflict},
		{domain.WrapError(domain.ErrTemporary, "x", errors.New("y")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
