package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

type errorResponse struct {
	Error      string                 `json:"error"`
	Code       string                 `json:"code"`
	Mismatches []domain.FieldMismatch `json:"mismatches,omitempty"`
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

// errorMappings is ordered: workflow kinds come before the generic kinds they may wrap.
var errorMappings = []errorMapping{
	{domain.ErrFieldMismatch, http.StatusUnprocessableEntity, "field_mismatch"},
	{domain.ErrMissingBarcode, http.StatusBadRequest, "missing_barcode"},
	{domain.ErrRetrievalFailed, http.StatusBadGateway, "retrieval_failed"},
	{domain.ErrFinalizationFailed, http.StatusBadGateway, "finalization_failed"},
	{domain.ErrCameraUnavailable, http.StatusServiceUnavailable, "camera_unavailable"},
	{domain.ErrOCRFailed, http.StatusUnprocessableEntity, "ocr_failed"},
	{domain.ErrNothingToVerify, http.StatusConflict, "nothing_to_verify"},
	{domain.ErrMissingOrderID, http.StatusConflict, "missing_order_id"},
	{domain.ErrVerdictNotPassed, http.StatusConflict, "verdict_not_passed"},
	{domain.ErrSessionBusy, http.StatusConflict, "session_busy"},
	{domain.ErrSessionAbandoned, http.StatusConflict, "session_abandoned"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrTemporary, http.StatusServiceUnavailable, "temporary_failure"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func mapErrorToHTTPStatus(err error) int {
	status, _ := classifyError(err)
	return status
}

func classifyError(err error) (int, string) {
	for _, m := range errorMappings {
		if domain.IsKind(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	var mismatchErr *domain.FieldMismatchError
	if errors.As(err, &mismatchErr) {
		resp.Mismatches = mismatchErr.Mismatches
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}
