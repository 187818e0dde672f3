package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// Recognizer reads the embedded text layer of a PDF. Scanned PDFs without a
// text layer yield an error.
type Recognizer struct {
	maxBytes int64
}

func NewRecognizer(maxBytes int64) *Recognizer {
	return &Recognizer{maxBytes: maxBytes}
}

func (r *Recognizer) Recognize(ctx context.Context, payload domain.Payload) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.maxBytes > 0 && int64(len(payload.Data)) > r.maxBytes {
		return "", fmt.Errorf("pdf %s exceeds %d bytes", payload.FileName, r.maxBytes)
	}

	// The parser panics on some malformed documents.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("parse pdf %s: %v", payload.FileName, rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(payload.Data), int64(len(payload.Data)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", payload.FileName, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", payload.FileName, err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text %s: %w", payload.FileName, err)
	}

	text = strings.TrimSpace(string(raw))
	if text == "" {
		return "", errors.New("pdf has no embedded text layer")
	}
	return text, nil
}
