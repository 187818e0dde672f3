package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// Finalize approves the order remotely and resets the session for the next shipment.
// A missing order id fails before any remote call is made.
func (uc *VerificationUseCase) Finalize(ctx context.Context, sessionID, comments string) (*domain.Session, error) {
	const op = "finalize"
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	s := h.session
	if strings.TrimSpace(s.OrderID) == "" {
		err := domain.WrapError(domain.ErrMissingOrderID, op, errors.New("no receiving order has been retrieved"))
		s.LastError = err.Error()
		h.mu.Unlock()
		return nil, err
	}
	if err := requireStage(s, op, domain.StageResults); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	if s.Verdict == nil || !s.Verdict.Passed {
		h.mu.Unlock()
		return nil, domain.WrapError(domain.ErrVerdictNotPassed, op, errors.New("only a passed verification can be approved"))
	}
	sessionCtx, epoch, err := uc.beginAsyncLocked(h, "finalization")
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}

	comments = strings.TrimSpace(comments)
	req := domain.ApprovalRequest{
		Status:   domain.ApprovalStatusApproved,
		Comments: comments,
		UserID:   s.Operator.UserID,
	}
	event := domain.FinalizedVerification{
		SessionID: s.ID,
		OrderID:   s.OrderID,
		Barcode:   s.Barcode,
		UserID:    s.Operator.UserID,
		Comments:  comments,
		Verdict:   *s.Snapshot().Verdict,
	}
	payloads := make(map[domain.DocumentType]domain.Payload)
	for _, slot := range s.AcquiredSlots() {
		payloads[slot.Type] = *slot.Source
	}
	h.mu.Unlock()

	opCtx, done := operationContext(ctx, sessionCtx)
	defer done()

	finalizeErr := uc.orders.UpdateStatus(opCtx, event.OrderID, req)
	if finalizeErr != nil && !domain.IsKind(finalizeErr, domain.ErrFinalizationFailed) {
		finalizeErr = domain.WrapError(domain.ErrFinalizationFailed, op, finalizeErr)
	}
	uc.observer.FinalizationFinished(finalizeErr)
	if finalizeErr == nil {
		event.FinalizedAt = uc.now()
		event.ArchiveKeys = uc.archivePayloads(opCtx, event.OrderID, event.FinalizedAt.Unix(), payloads)
		if uc.events != nil {
			if err := uc.events.PublishVerificationFinalized(opCtx, event); err != nil {
				uc.logger.Warn("verification_event_publish_failed", "order_id", event.OrderID, "error", err)
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.endAsyncLocked(h, epoch, op); err != nil {
		return nil, err
	}
	if finalizeErr != nil {
		s.LastError = finalizeErr.Error()
		uc.logger.Warn("order_finalization_failed", "session_id", s.ID, "order_id", event.OrderID, "error", finalizeErr)
		return nil, finalizeErr
	}

	uc.logger.Info("order_finalized", "session_id", s.ID, "order_id", event.OrderID, "user_id", event.UserID)
	uc.resetLocked(h)
	return s.Snapshot(), nil
}

// archivePayloads stores the verified source documents. Failures are logged and skipped.
func (uc *VerificationUseCase) archivePayloads(ctx context.Context, orderID string, stamp int64, payloads map[domain.DocumentType]domain.Payload) map[string]string {
	if uc.archive == nil || len(payloads) == 0 {
		return nil
	}
	keys := make(map[string]string, len(payloads))
	for _, docType := range domain.DocumentTypes() {
		payload, ok := payloads[docType]
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s_%d_%s_%s", sanitizeFilename(orderID), stamp, docType, sanitizeFilename(payload.FileName))
		if err := uc.archive.Save(ctx, key, bytes.NewReader(payload.Data)); err != nil {
			uc.logger.Warn("document_archive_failed", "order_id", orderID, "document_type", docType, "error", err)
			continue
		}
		keys[string(docType)] = key
	}
	return keys
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
