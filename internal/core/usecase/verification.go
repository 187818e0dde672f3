package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/matching"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
)

type VerificationOptions struct {
	// ResultsDelay paces the upload -> results transition so clients can show a processing state.
	ResultsDelay         time.Duration
	SessionIdleTTL       time.Duration
	OCRConcurrency       int
	ReferenceConcurrency int
}

func (o VerificationOptions) normalize() VerificationOptions {
	out := o
	if out.ResultsDelay < 0 {
		out.ResultsDelay = 0
	}
	if out.SessionIdleTTL <= 0 {
		out.SessionIdleTTL = 2 * time.Hour
	}
	if out.OCRConcurrency <= 0 {
		out.OCRConcurrency = len(domain.DocumentTypes())
	}
	if out.ReferenceConcurrency <= 0 {
		out.ReferenceConcurrency = len(domain.DocumentTypes())
	}
	return out
}

type VerificationDependencies struct {
	Orders     ports.OrderGateway
	Recognizer ports.TextRecognizer
	Capture    ports.DocumentCapture
	Checker    *matching.Checker

	// Optional collaborators.
	Archive  ports.ObjectStorage
	Events   ports.VerificationEvents
	Observer ports.WorkflowObserver
	Logger   *slog.Logger
}

type VerificationUseCase struct {
	orders     ports.OrderGateway
	recognizer ports.TextRecognizer
	capture    ports.DocumentCapture
	checker    *matching.Checker
	archive    ports.ObjectStorage
	events     ports.VerificationEvents
	observer   ports.WorkflowObserver
	logger     *slog.Logger
	opts       VerificationOptions

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	sessions map[string]*sessionHandle
}

// sessionHandle owns a session's runtime resources. mu is never held across remote calls.
type sessionHandle struct {
	mu       sync.Mutex
	session  *domain.Session
	ctx      context.Context
	cancel   context.CancelFunc
	epoch    uint64
	busy     string
	capture  ports.CaptureSession
	lastSeen time.Time
}

func NewVerificationUseCase(deps VerificationDependencies, opts VerificationOptions) *VerificationUseCase {
	checker := deps.Checker
	if checker == nil {
		checker = matching.NewChecker(nil)
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationUseCase{
		orders:     deps.Orders,
		recognizer: deps.Recognizer,
		capture:    deps.Capture,
		checker:    checker,
		archive:    deps.Archive,
		events:     deps.Events,
		observer:   observer,
		logger:     logger,
		opts:       opts.normalize(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
		sessions:   make(map[string]*sessionHandle),
	}
}

func (uc *VerificationUseCase) StartSession(_ context.Context, operator domain.Operator) (*domain.Session, error) {
	operator.UserID = strings.TrimSpace(operator.UserID)
	if operator.UserID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start session", errors.New("operator user id is required"))
	}

	now := uc.now()
	ctx, cancel := context.WithCancel(context.Background())
	h := &sessionHandle{
		session:  domain.NewSession(uc.newID(), operator, now),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: now,
	}

	uc.mu.Lock()
	uc.sweepIdleLocked(now)
	uc.sessions[h.session.ID] = h
	uc.mu.Unlock()

	uc.observer.SessionStarted()
	uc.logger.Info("verification_session_started", "session_id", h.session.ID, "user_id", operator.UserID)
	return h.session.Snapshot(), nil
}

func (uc *VerificationUseCase) Session(_ context.Context, sessionID string) (*domain.Session, error) {
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	uc.touch(h)
	return h.session.Snapshot(), nil
}

// Reset abandons in-flight work, releases the camera and returns to the barcode stage.
func (uc *VerificationUseCase) Reset(_ context.Context, sessionID string) (*domain.Session, error) {
	h, err := uc.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	uc.resetLocked(h)
	uc.logger.Info("verification_session_reset", "session_id", sessionID)
	return h.session.Snapshot(), nil
}

func (uc *VerificationUseCase) Close(_ context.Context, sessionID string) error {
	uc.mu.Lock()
	h, ok := uc.sessions[sessionID]
	if ok {
		delete(uc.sessions, sessionID)
	}
	uc.mu.Unlock()
	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "close session", fmt.Errorf("id=%s", sessionID))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	uc.resetLocked(h)
	h.cancel()
	uc.logger.Info("verification_session_closed", "session_id", sessionID)
	return nil
}

func (uc *VerificationUseCase) lookup(sessionID string) (*sessionHandle, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	h, ok := uc.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "lookup session", fmt.Errorf("id=%s", sessionID))
	}
	return h, nil
}

func (uc *VerificationUseCase) sweepIdleLocked(now time.Time) {
	for id, h := range uc.sessions {
		h.mu.Lock()
		expired := h.busy == "" && now.Sub(h.lastSeen) > uc.opts.SessionIdleTTL
		if expired {
			uc.resetLocked(h)
			h.cancel()
		}
		h.mu.Unlock()
		if expired {
			delete(uc.sessions, id)
			uc.logger.Info("verification_session_expired", "session_id", id)
		}
	}
}

// resetLocked must be called with h.mu held.
func (uc *VerificationUseCase) resetLocked(h *sessionHandle) {
	h.epoch++
	h.cancel()
	h.ctx, h.cancel = context.WithCancel(context.Background())
	uc.releaseCaptureLocked(h)
	h.busy = ""
	h.session.Reset(uc.now())
	uc.touch(h)
}

func (uc *VerificationUseCase) releaseCaptureLocked(h *sessionHandle) {
	if h.capture != nil {
		if err := h.capture.Close(); err != nil {
			uc.logger.Warn("camera_release_failed", "session_id", h.session.ID, "error", err)
		}
		h.capture = nil
	}
	h.session.Capture = nil
}

func (uc *VerificationUseCase) touch(h *sessionHandle) {
	now := uc.now()
	h.lastSeen = now
	h.session.UpdatedAt = now
}

// beginAsyncLocked marks the session busy for a call that runs without the lock.
func (uc *VerificationUseCase) beginAsyncLocked(h *sessionHandle, operation string) (context.Context, uint64, error) {
	if h.busy != "" {
		return nil, 0, domain.WrapError(domain.ErrSessionBusy, operation, fmt.Errorf("%s in progress", h.busy))
	}
	h.busy = operation
	uc.touch(h)
	return h.ctx, h.epoch, nil
}

// endAsyncLocked clears the busy mark; it fails when the session was reset meanwhile.
func (uc *VerificationUseCase) endAsyncLocked(h *sessionHandle, epoch uint64, operation string) error {
	if h.epoch != epoch {
		return domain.WrapError(domain.ErrSessionAbandoned, operation, context.Canceled)
	}
	h.busy = ""
	uc.touch(h)
	return nil
}

// operationContext is cancelled when either the caller goes away or the session is reset.
func operationContext(requestCtx, sessionCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(requestCtx)
	stop := context.AfterFunc(sessionCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func requireStage(s *domain.Session, operation string, stage domain.Stage) error {
	if s.Stage != stage {
		return domain.WrapError(domain.ErrInvalidTransition, operation, fmt.Errorf("session is at stage %s, expected %s", s.Stage, stage))
	}
	return nil
}

func knownDocumentType(t domain.DocumentType) bool {
	for _, known := range domain.DocumentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

type noopObserver struct{}

func (noopObserver) SessionStarted() {}
func (noopObserver) RetrievalFinished(error) {}
func (noopObserver) OCRFinished(domain.DocumentType, time.Duration, error) {}
func (noopObserver) VerdictReached(domain.Verdict) {}
func (noopObserver) FieldMismatches([]domain.FieldMismatch) {}
func (noopObserver) FinalizationFinished(error) {}
