package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

const (
	userIDHeader = "X-User-Id"

	maxJSONBodyBytes = 64 << 10
	// multipartOverhead covers boundaries and part headers around the uploaded file.
	multipartOverhead = 1 << 20
)

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	operator := domain.Operator{UserID: strings.TrimSpace(r.Header.Get(userIDHeader))}
	session, err := rt.workflow.StartSession(r.Context(), operator)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.Session(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	if err := rt.workflow.Close(r.Context(), sessionID); err != nil {
		rt.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) submitBarcode(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := decodeJSON(w, r, &req, false); err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.SubmitBarcode(r.Context(), sessionID, req.Barcode)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	docType, err := pathDocumentType(r)
	if err != nil {
		rt.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.uploadMaxBytes+multipartOverhead)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rt.fail(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("file exceeds %d bytes", rt.uploadMaxBytes)))
			return
		}
		rt.fail(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	session, err := rt.workflow.UploadDocument(
		r.Context(),
		sessionID,
		docType,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) startCamera(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	docType, err := pathDocumentType(r)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.StartCamera(r.Context(), sessionID, docType)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) captureFrame(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	frame, err := rt.workflow.CaptureFrame(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (rt *Router) commitCrop(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	var req struct {
		Region *domain.Region `json:"region"`
	}
	if err := decodeJSON(w, r, &req, true); err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.CommitCrop(r.Context(), sessionID, req.Region)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) cancelCapture(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.CancelCapture(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) confirm(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	verdict, err := rt.workflow.Confirm(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (rt *Router) finalize(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	var req struct {
		Comments string `json:"comments"`
	}
	if err := decodeJSON(w, r, &req, true); err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.Finalize(r.Context(), sessionID, req.Comments)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) resetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.Reset(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) downloadReport(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathString(r, "session_id")
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	session, err := rt.workflow.Session(r.Context(), sessionID)
	if err != nil {
		rt.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.report.Render(session, &buf); err != nil {
		rt.fail(w, r, fmt.Errorf("render report: %w", err))
		return
	}
	name := session.OrderID
	if name == "" {
		name = session.ID
	}
	w.Header().Set("Content-Type", rt.report.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "verification-"+name+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func pathString(r *http.Request, name string) (string, error) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &value, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind "+name, err)
	}
	return value, nil
}

func pathDocumentType(r *http.Request) (domain.DocumentType, error) {
	raw, err := pathString(r, "document_type")
	if err != nil {
		return "", err
	}
	return domain.ParseDocumentType(raw)
}

// decodeJSON reads a bounded JSON body. An empty body is accepted when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "read body", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if optional {
			return nil
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode body", errors.New("request body is required"))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode body", errors.New("invalid json"))
	}
	return nil
}
