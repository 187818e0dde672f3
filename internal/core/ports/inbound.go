package ports

import (
	"context"
	"io"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// VerificationWorkflow is the inbound contract for the document verification state machine.
type VerificationWorkflow interface {
	StartSession(ctx context.Context, operator domain.Operator) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	SubmitBarcode(ctx context.Context, sessionID, barcode string) (*domain.Session, error)
	UploadDocument(ctx context.Context, sessionID string, docType domain.DocumentType, filename, mimeType string, body io.Reader) (*domain.Session, error)
	StartCamera(ctx context.Context, sessionID string, docType domain.DocumentType) (*domain.Session, error)
	CaptureFrame(ctx context.Context, sessionID string) (*domain.Frame, error)
	CommitCrop(ctx context.Context, sessionID string, region *domain.Region) (*domain.Session, error)
	CancelCapture(ctx context.Context, sessionID string) (*domain.Session, error)
	Confirm(ctx context.Context, sessionID string) (*domain.Verdict, error)
	Finalize(ctx context.Context, sessionID, comments string) (*domain.Session, error)
	Reset(ctx context.Context, sessionID string) (*domain.Session, error)
	Close(ctx context.Context, sessionID string) error
}

// ReportRenderer renders a session verdict into a downloadable document.
type ReportRenderer interface {
	Render(session *domain.Session, w io.Writer) error
	ContentType() string
}
