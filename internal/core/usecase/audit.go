package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
)

// AuditUseCase persists finalized verifications delivered by the event queue.
type AuditUseCase struct {
	repo   ports.AuditRepository
	logger *slog.Logger
}

func NewAuditUseCase(repo ports.AuditRepository, logger *slog.Logger) *AuditUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditUseCase{repo: repo, logger: logger}
}

func (uc *AuditUseCase) Record(ctx context.Context, event domain.FinalizedVerification) error {
	const op = "record audit"
	if err := validateFinalized(event); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, op, err)
	}
	if err := uc.repo.RecordFinalized(ctx, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	uc.logger.Info("verification_audited",
		"session_id", event.SessionID,
		"order_id", event.OrderID,
		"user_id", event.UserID,
		"documents", len(event.Verdict.Slots),
	)
	return nil
}

func (uc *AuditUseCase) History(ctx context.Context, orderID string) ([]domain.FinalizedVerification, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "audit history", errors.New("order id is required"))
	}
	events, err := uc.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	return events, nil
}

func validateFinalized(event domain.FinalizedVerification) error {
	switch {
	case strings.TrimSpace(event.OrderID) == "":
		return errors.New("order id is required")
	case strings.TrimSpace(event.SessionID) == "":
		return errors.New("session id is required")
	case event.FinalizedAt.IsZero():
		return errors.New("finalized_at is required")
	case !event.Verdict.Passed:
		return errors.New("only passed verifications are finalized")
	}
	return nil
}
