package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// OrderGateway talks to the remote receiving-order API.
type OrderGateway interface {
	LookupByBarcode(ctx context.Context, barcode string) (*domain.OrderLookup, error)
	DownloadDocument(ctx context.Context, doc domain.ReferenceDocument) (domain.Payload, error)
	UpdateStatus(ctx context.Context, orderID string, req domain.ApprovalRequest) error
}

// TextRecognizer extracts plain text from an image or document payload.
type TextRecognizer interface {
	Recognize(ctx context.Context, payload domain.Payload) (string, error)
}

// DocumentCapture acquires document payloads, either from an uploaded file or from the camera.
type DocumentCapture interface {
	FromUpload(filename, mimeType string, body io.Reader) (domain.Payload, error)
	BeginCamera(ctx context.Context) (CaptureSession, error)
}

// CaptureSession owns the camera stream until Capture releases it or Close discards everything.
type CaptureSession interface {
	Capture(ctx context.Context) (domain.Frame, error)
	Crop(region *domain.Region) (domain.Payload, error)
	Close() error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// VerificationEvents publishes finalized verifications.
type VerificationEvents interface {
	PublishVerificationFinalized(ctx context.Context, event domain.FinalizedVerification) error
}

// AuditRepository persists finalized verifications.
type AuditRepository interface {
	RecordFinalized(ctx context.Context, event domain.FinalizedVerification) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.FinalizedVerification, error)
}

// WorkflowObserver receives workflow telemetry. Implementations must be safe for concurrent use.
type WorkflowObserver interface {
	SessionStarted()
	RetrievalFinished(err error)
	OCRFinished(docType domain.DocumentType, duration time.Duration, err error)
	VerdictReached(verdict domain.Verdict)
	FieldMismatches(mismatches []domain.FieldMismatch)
	FinalizationFinished(err error)
}
