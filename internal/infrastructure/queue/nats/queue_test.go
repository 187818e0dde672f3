package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func TestEventRoundTripKeepsVerdict(t *testing.T) {
	event := domain.FinalizedVerification{
		SessionID: "s-1",
		OrderID:   "ORD-1",
		Barcode:   "BC12345",
		UserID:    "operator-7",
		Verdict: domain.Verdict{
			Passed: true,
			Slots:  []domain.SlotResult{{Type: domain.DocumentInvoice, Status: domain.SlotScored, Score: 0.82, Matched: true}},
		},
		FinalizedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	got, err := decodeEvent(data)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if got.OrderID != "ORD-1" || !got.Verdict.Passed || got.Verdict.Slots[0].Score != 0.82 {
		t.Fatalf("unexpected decoded event: %+v", got)
	}
}

func TestDecodeEventRejectsMissingOrder(t *testing.T) {
	if _, err := decodeEvent([]byte(`{"session_id":"s-1"}`)); err == nil {
		t.Fatalf("expected error for event without order id")
	}
	if _, err := decodeEvent([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed event")
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true},
		{name: "timeout", err: nats.ErrTimeout, retryable: true},
		{name: "open circuit", err: gobreaker.ErrOpenState, retryable: true},
		{name: "max payload", err: nats.ErrMaxPayload, retryable: false},
		{name: "cancelled", err: context.Canceled, retryable: false},
		{name: "other", err: errors.New("boom"), retryable: false},
	}
	for _, tc := range cases {
		if got := classifyNATSError(tc.err).Retryable; got != tc.retryable {
			t.Fatalf("%s: expected retryable=%v, got %v", tc.name, tc.retryable, got)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(nats.ErrBadSubject); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}
