package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// UploadDocument fills a slot from an uploaded file, replacing any earlier payload.
func (uc *VerificationUseCase) UploadDocument(
	_ context.Context,
	sessionID string,
	docType domain.DocumentType,
	filename string,
	mimeType string,
	body io.Reader,
) (*domain.Session, error) {
	const op = "upload document"
	if !knownDocumentType(docType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown document type %q", docType))
	}
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	payload, err := uc.capture.FromUpload(filename, mimeType, body)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.checkAcquisitionLocked(h, op); err != nil {
		return nil, err
	}
	if h.session.Capture != nil && h.session.Capture.DocumentType == docType {
		uc.releaseCaptureLocked(h)
	}
	uc.acquireLocked(h, docType, payload)
	return h.session.Snapshot(), nil
}

// StartCamera opens the camera stream for a slot. An open stream for another slot is released first.
func (uc *VerificationUseCase) StartCamera(ctx context.Context, sessionID string, docType domain.DocumentType) (*domain.Session, error) {
	const op = "start camera"
	if !knownDocumentType(docType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unknown document type %q", docType))
	}
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if err := uc.checkAcquisitionLocked(h, op); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	uc.releaseCaptureLocked(h)
	sessionCtx, epoch, err := uc.beginAsyncLocked(h, "camera")
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	opCtx, done := operationContext(ctx, sessionCtx)
	defer done()
	stream, openErr := uc.capture.BeginCamera(opCtx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.endAsyncLocked(h, epoch, op); err != nil {
		if stream != nil {
			_ = stream.Close()
		}
		return nil, err
	}
	if openErr != nil {
		if !domain.IsKind(openErr, domain.ErrCameraUnavailable) {
			openErr = domain.WrapError(domain.ErrCameraUnavailable, op, openErr)
		}
		h.session.LastError = openErr.Error()
		uc.logger.Warn("camera_unavailable", "session_id", h.session.ID, "error", openErr)
		return nil, openErr
	}

	h.capture = stream
	h.session.Capture = &domain.CaptureState{DocumentType: docType, Phase: domain.CaptureStreaming}
	h.session.LastError = ""
	return h.session.Snapshot(), nil
}

// CaptureFrame takes a still from the open stream and releases the stream.
func (uc *VerificationUseCase) CaptureFrame(ctx context.Context, sessionID string) (*domain.Frame, error) {
	const op = "capture frame"
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.capture == nil || h.session.Capture == nil || h.session.Capture.Phase != domain.CaptureStreaming {
		h.mu.Unlock()
		return nil, domain.WrapError(domain.ErrInvalidTransition, op, errors.New("no active camera stream"))
	}
	stream := h.capture
	sessionCtx, epoch, err := uc.beginAsyncLocked(h, "capture")
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	opCtx, done := operationContext(ctx, sessionCtx)
	defer done()
	frame, captureErr := stream.Capture(opCtx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.endAsyncLocked(h, epoch, op); err != nil {
		return nil, err
	}
	if h.capture != stream || h.session.Capture == nil {
		return nil, domain.WrapError(domain.ErrInvalidTransition, op, errors.New("capture was cancelled"))
	}
	if captureErr != nil {
		if !domain.IsKind(captureErr, domain.ErrCameraUnavailable) {
			captureErr = domain.WrapError(domain.ErrCameraUnavailable, op, captureErr)
		}
		h.session.LastError = captureErr.Error()
		return nil, captureErr
	}

	h.session.Capture.Phase = domain.CaptureCropping
	h.session.Capture.Frame = &frame
	out := frame
	return &out, nil
}

// CommitCrop crops the captured frame and binds the result to the capture's slot.
// A nil region selects the frame's default crop.
func (uc *VerificationUseCase) CommitCrop(_ context.Context, sessionID string, region *domain.Region) (*domain.Session, error) {
	const op = "commit crop"
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture == nil || h.session.Capture == nil || h.session.Capture.Phase != domain.CaptureCropping {
		return nil, domain.WrapError(domain.ErrInvalidTransition, op, errors.New("no captured frame to crop"))
	}
	if err := uc.checkAcquisitionLocked(h, op); err != nil {
		return nil, err
	}

	payload, err := h.capture.Crop(region)
	if err != nil {
		return nil, err
	}
	docType := h.session.Capture.DocumentType
	uc.releaseCaptureLocked(h)
	uc.acquireLocked(h, docType, payload)
	return h.session.Snapshot(), nil
}

// CancelCapture discards the capture and leaves the slot as it was.
func (uc *VerificationUseCase) CancelCapture(_ context.Context, sessionID string) (*domain.Session, error) {
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	uc.releaseCaptureLocked(h)
	uc.touch(h)
	return h.session.Snapshot(), nil
}

func (uc *VerificationUseCase) checkAcquisitionLocked(h *sessionHandle, op string) error {
	uc.reopenFailedVerdictLocked(h)
	if err := requireStage(h.session, op, domain.StageUpload); err != nil {
		return err
	}
	if h.busy != "" && h.busy != "capture" {
		return domain.WrapError(domain.ErrSessionBusy, op, fmt.Errorf("%s in progress", h.busy))
	}
	return nil
}

// reopenFailedVerdictLocked moves a session whose verdict failed back to upload so
// documents can be resubmitted. The barcode and order binding are kept.
func (uc *VerificationUseCase) reopenFailedVerdictLocked(h *sessionHandle) {
	s := h.session
	if s.Stage != domain.StageResults || h.busy != "" || (s.Verdict != nil && s.Verdict.Passed) {
		return
	}
	s.Stage = domain.StageUpload
	s.Verdict = nil
	uc.logger.Info("verification_reopened", "session_id", s.ID, "order_id", s.OrderID)
}

func (uc *VerificationUseCase) acquireLocked(h *sessionHandle, docType domain.DocumentType, payload domain.Payload) {
	slot := h.session.Slot(docType)
	slot.Acquire(payload)
	h.session.Verdict = nil
	h.session.LastError = ""
	uc.touch(h)
	uc.logger.Info("document_acquired",
		"session_id", h.session.ID,
		"document_type", docType,
		"source", payload.Source,
		"bytes", payload.Size(),
	)
}
