package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
)

type ocrJob struct {
	docType  domain.DocumentType
	revision int
	payload  domain.Payload
}

type ocrResult struct {
	job  ocrJob
	text string
	err  error
}

// Confirm runs OCR for every acquired slot that has no text yet, scores each slot
// against its reference and checks cross-document fields.
//
// Field mismatches and unreadable documents keep the session at the upload stage and
// flag the slots that must be resubmitted; otherwise the verdict is stored and the
// session moves to results. A failed verdict can be corrected by resubmitting documents.
func (uc *VerificationUseCase) Confirm(ctx context.Context, sessionID string) (*domain.Verdict, error) {
	const op = "confirm"
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	s := h.session
	if err := requireStage(s, op, domain.StageUpload); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	acquired := s.AcquiredSlots()
	if len(acquired) == 0 {
		err := domain.WrapError(domain.ErrNothingToVerify, op, errors.New("no document has been acquired"))
		s.LastError = err.Error()
		h.mu.Unlock()
		return nil, err
	}
	sessionCtx, epoch, err := uc.beginAsyncLocked(h, "confirmation")
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	jobs := make([]ocrJob, 0, len(acquired))
	for _, slot := range acquired {
		if !slot.NeedsExtraction() {
			continue
		}
		slot.BeginExtraction()
		jobs = append(jobs, ocrJob{docType: slot.Type, revision: slot.Revision, payload: *slot.Source})
	}
	s.Verdict = nil
	h.mu.Unlock()

	opCtx, done := operationContext(ctx, sessionCtx)
	defer done()

	results := uc.recognizeAll(opCtx, jobs)
	uc.pace(opCtx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.endAsyncLocked(h, epoch, op); err != nil {
		return nil, err
	}

	if ctxErr := opCtx.Err(); ctxErr != nil {
		for _, res := range results {
			slot := s.Slot(res.job.docType)
			if slot.Status == domain.SlotExtracting {
				slot.Status = domain.SlotCaptured
			}
		}
		return nil, fmt.Errorf("%s: %w", op, ctxErr)
	}

	for _, res := range results {
		slot := s.Slot(res.job.docType)
		if slot.Revision != res.job.revision {
			continue
		}
		if res.err != nil {
			slot.FailExtraction(res.err.Error())
			uc.logger.Warn("document_ocr_failed", "session_id", s.ID, "document_type", res.job.docType, "error", res.err)
			continue
		}
		slot.ApplyExtraction(res.text)
	}

	acquired = s.AcquiredSlots()
	texts := make(map[domain.DocumentType]string, len(acquired))
	var failedOCR []domain.DocumentType
	for _, slot := range acquired {
		scoreSlot(slot)
		if slot.ExtractedText != "" {
			texts[slot.Type] = slot.ExtractedText
		}
		if slot.OCRFailed() {
			failedOCR = append(failedOCR, slot.Type)
		}
	}

	for _, slot := range s.Slots {
		slot.ClearResubmission()
	}
	for _, docType := range failedOCR {
		slot := s.Slot(docType)
		slot.MarkForResubmission(fmt.Sprintf("text could not be read from the %s; retry or resubmit it", docType.Label()))
	}
	if mismatches := uc.checker.Check(texts); len(mismatches) > 0 {
		for _, m := range mismatches {
			for _, docType := range implicatedSlots(m) {
				s.Slot(docType).MarkForResubmission(m.Reason)
			}
		}
		uc.observer.FieldMismatches(mismatches)
		mismatchErr := &domain.FieldMismatchError{Mismatches: mismatches}
		s.LastError = mismatchErr.Error()
		uc.logger.Info("verification_field_mismatch", "session_id", s.ID, "order_id", s.OrderID, "mismatches", len(mismatches))
		return nil, fmt.Errorf("%s: %w", op, mismatchErr)
	}
	if len(failedOCR) > 0 {
		err := domain.WrapError(domain.ErrOCRFailed, op, fmt.Errorf("text could not be read from %s", joinLabels(failedOCR)))
		s.LastError = err.Error()
		uc.logger.Info("verification_ocr_incomplete", "session_id", s.ID, "order_id", s.OrderID, "documents", len(failedOCR))
		return nil, err
	}

	verdict := domain.NewVerdict(acquired, nil, uc.now())
	for _, slot := range acquired {
		if !slot.Matched {
			slot.MarkForResubmission(mismatchReason(slot))
		}
	}
	s.Verdict = &verdict
	s.Stage = domain.StageResults
	s.LastError = ""
	uc.observer.VerdictReached(verdict)
	uc.logger.Info("verification_confirmed",
		"session_id", s.ID,
		"order_id", s.OrderID,
		"outcome", verdict.Outcome(),
		"documents", len(acquired),
	)

	out := s.Snapshot().Verdict
	return out, nil
}

func (uc *VerificationUseCase) recognizeAll(ctx context.Context, jobs []ocrJob) []ocrResult {
	results := make([]ocrResult, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(uc.opts.OCRConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			started := time.Now()
			text, err := uc.recognizer.Recognize(ctx, job.payload)
			if err == nil && strings.TrimSpace(text) == "" {
				err = errors.New("no text recognized")
			}
			if err != nil && ctx.Err() == nil && !domain.IsKind(err, domain.ErrOCRFailed) {
				err = domain.WrapError(domain.ErrOCRFailed, "recognize "+string(job.docType), err)
			}
			uc.observer.OCRFinished(job.docType, time.Since(started), err)
			results[i] = ocrResult{job: job, text: text, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (uc *VerificationUseCase) pace(ctx context.Context) {
	if uc.opts.ResultsDelay <= 0 {
		return
	}
	timer := time.NewTimer(uc.opts.ResultsDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func scoreSlot(slot *domain.DocumentSlot) {
	if !slot.HasReference {
		if !slot.OCRFailed() {
			slot.FailScore("no reference document available for " + slot.Type.Label())
		}
		return
	}
	score := matching.Similarity(slot.ExtractedText, slot.ReferenceText)
	slot.ApplyScore(score, matching.IsMatch(score))
}

func mismatchReason(slot *domain.DocumentSlot) string {
	if slot.Error != "" {
		return slot.Error
	}
	return fmt.Sprintf("%s matches its reference at %.0f%%, below the %.0f%% threshold",
		slot.Type.Label(), slot.Score*100, matching.MatchThreshold*100)
}

func joinLabels(types []domain.DocumentType) string {
	labels := make([]string, 0, len(types))
	for _, t := range types {
		labels = append(labels, t.Label())
	}
	return strings.Join(labels, ", ")
}

// implicatedSlots names the documents an operator has to resubmit for a mismatch.
func implicatedSlots(m domain.FieldMismatch) []domain.DocumentType {
	switch {
	case m.SourceValue != "" && m.TargetValue == "":
		return []domain.DocumentType{m.Target}
	case m.SourceValue == "" && m.TargetValue != "":
		return []domain.DocumentType{m.Source}
	default:
		return []domain.DocumentType{m.Source, m.Target}
	}
}
