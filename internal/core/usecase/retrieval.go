package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// SubmitBarcode looks up the receiving order and loads its reference documents.
// On failure the session stays at the barcode stage without an order id.
func (uc *VerificationUseCase) SubmitBarcode(ctx context.Context, sessionID, barcode string) (*domain.Session, error) {
	const op = "submit barcode"
	barcode = strings.TrimSpace(barcode)

	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if err := requireStage(h.session, op, domain.StageBarcode); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	if barcode == "" {
		err := domain.WrapError(domain.ErrMissingBarcode, op, errors.New("barcode is required"))
		h.session.LastError = err.Error()
		h.mu.Unlock()
		return nil, err
	}
	sessionCtx, epoch, err := uc.beginAsyncLocked(h, "retrieval")
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	opCtx, done := operationContext(ctx, sessionCtx)
	defer done()

	lookup, references, retrieveErr := uc.retrieve(opCtx, barcode)
	uc.observer.RetrievalFinished(retrieveErr)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := uc.endAsyncLocked(h, epoch, op); err != nil {
		return nil, err
	}

	s := h.session
	if retrieveErr != nil {
		s.LastError = retrieveErr.Error()
		uc.logger.Warn("order_retrieval_failed", "session_id", s.ID, "barcode", barcode, "error", retrieveErr)
		return nil, retrieveErr
	}

	s.Barcode = barcode
	s.OrderID = lookup.OrderID
	for docType, text := range references {
		s.Slot(docType).SetReference(text)
	}
	s.Stage = domain.StageUpload
	s.LastError = ""

	uc.logger.Info("order_retrieved",
		"session_id", s.ID,
		"barcode", barcode,
		"order_id", lookup.OrderID,
		"references", len(references),
	)
	return s.Snapshot(), nil
}

func (uc *VerificationUseCase) retrieve(ctx context.Context, barcode string) (*domain.OrderLookup, map[domain.DocumentType]string, error) {
	const op = "retrieve order"
	lookup, err := uc.orders.LookupByBarcode(ctx, barcode)
	if err != nil {
		if domain.IsKind(err, domain.ErrRetrievalFailed) {
			return nil, nil, err
		}
		return nil, nil, domain.WrapError(domain.ErrRetrievalFailed, op, err)
	}
	if lookup == nil || strings.TrimSpace(lookup.OrderID) == "" {
		return nil, nil, domain.WrapError(domain.ErrRetrievalFailed, op, errors.New("order lookup returned no order id"))
	}
	lookup.OrderID = strings.TrimSpace(lookup.OrderID)

	return lookup, uc.loadReferences(ctx, lookup.OrderID, lookup.Documents), nil
}

// loadReferences downloads and recognizes every reference document concurrently.
// A document that cannot be loaded leaves its slot without a reference.
func (uc *VerificationUseCase) loadReferences(ctx context.Context, orderID string, docs []domain.ReferenceDocument) map[domain.DocumentType]string {
	out := make(map[domain.DocumentType]string, len(docs))
	seen := make(map[domain.DocumentType]bool, len(docs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.ReferenceConcurrency)
	for _, doc := range docs {
		if !knownDocumentType(doc.Type) {
			uc.logger.Warn("reference_document_skipped", "order_id", orderID, "document_type", doc.Type)
			continue
		}
		if seen[doc.Type] {
			continue
		}
		seen[doc.Type] = true

		g.Go(func() error {
			text, err := uc.loadReference(gctx, doc)
			if err != nil {
				uc.logger.Warn("reference_document_failed",
					"order_id", orderID,
					"document_type", doc.Type,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			out[doc.Type] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (uc *VerificationUseCase) loadReference(ctx context.Context, doc domain.ReferenceDocument) (string, error) {
	payload, err := uc.orders.DownloadDocument(ctx, doc)
	if err != nil {
		return "", err
	}
	text, err := uc.recognizer.Recognize(ctx, payload)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrOCRFailed, "recognize reference", errors.New("no text recognized"))
	}
	return text, nil
}
