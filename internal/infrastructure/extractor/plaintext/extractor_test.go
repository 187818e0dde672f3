package plaintext

import (
	"context"
	"testing"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func TestRecognizeTrimsText(t *testing.T) {
	got, err := NewRecognizer().Recognize(context.Background(), domain.Payload{Data: []byte("\r\n Invoice INV-1\r\n")})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got != "Invoice INV-1" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestRecognizeRejectsBinary(t *testing.T) {
	_, err := NewRecognizer().Recognize(context.Background(), domain.Payload{FileName: "scan.bin", Data: []byte{0xff, 0xfe, 0x00}})
	if err == nil {
		t.Fatalf("expected error for binary payload")
	}
}

func TestRecognizeRejectsEmpty(t *testing.T) {
	if _, err := NewRecognizer().Recognize(context.Background(), domain.Payload{Data: []byte("  ")}); err == nil {
		t.Fatalf("expected error for empty text")
	}
}
