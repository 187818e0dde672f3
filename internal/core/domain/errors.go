package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingBarcode     = errors.New("missing barcode")
	ErrRetrievalFailed    = errors.New("retrieval failed")
	ErrCameraUnavailable  = errors.New("camera unavailable")
	ErrOCRFailed          = errors.New("ocr failed")
	ErrFieldMismatch      = errors.New("field mismatch")
	ErrNothingToVerify    = errors.New("nothing to verify")
	ErrMissingOrderID     = errors.New("missing order id")
	ErrFinalizationFailed = errors.New("finalization failed")

	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrSessionBusy       = errors.New("session busy")
	ErrSessionAbandoned  = errors.New("session abandoned")
	ErrVerdictNotPassed  = errors.New("verdict not passed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// FieldMismatchError carries every failing cross-document pair of a confirmation.
type FieldMismatchError struct {
	Mismatches []FieldMismatch
}

func (e *FieldMismatchError) Error() string {
	if e == nil || len(e.Mismatches) == 0 {
		return ErrFieldMismatch.Error()
	}
	reasons := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		reasons = append(reasons, m.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrFieldMismatch, strings.Join(reasons, "; "))
}

func (e *FieldMismatchError) Unwrap() error { return ErrFieldMismatch }
