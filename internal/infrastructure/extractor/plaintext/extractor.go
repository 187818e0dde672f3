package plaintext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// Recognizer returns the payload itself as text. Reference documents served as
// text/plain take this path.
type Recognizer struct{}

func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

func (r *Recognizer) Recognize(ctx context.Context, payload domain.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !utf8.Valid(payload.Data) {
		return "", fmt.Errorf("unsupported binary text document: %s", payload.FileName)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(payload.Data), "\r\n", "\n"))
	if text == "" {
		return "", errors.New("text document is empty")
	}
	return text, nil
}
