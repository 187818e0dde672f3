package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
)

// Router picks a recognizer by MIME type and reports every failure as domain.ErrOCRFailed.
type Router struct {
	images ports.TextRecognizer
	pdf    ports.TextRecognizer
	text   ports.TextRecognizer
}

func NewRouter(images, pdf, text ports.TextRecognizer) *Router {
	return &Router{images: images, pdf: pdf, text: text}
}

func (r *Router) Recognize(ctx context.Context, payload domain.Payload) (string, error) {
	op := "recognize " + payload.FileName
	if len(payload.Data) == 0 {
		return "", domain.WrapError(domain.ErrOCRFailed, op, errors.New("payload is empty"))
	}

	mimeType := normalizeMime(payload.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMime(mimetype.Detect(payload.Data).String())
	}

	var target ports.TextRecognizer
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		target = r.images
	case mimeType == "application/pdf":
		target = r.pdf
	case strings.HasPrefix(mimeType, "text/"):
		target = r.text
	}
	if target == nil {
		return "", domain.WrapError(domain.ErrOCRFailed, op, fmt.Errorf("unsupported media type %q", mimeType))
	}

	text, err := target.Recognize(ctx, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", domain.WrapError(domain.ErrOCRFailed, op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.WrapError(domain.ErrOCRFailed, op, errors.New("no text recognized"))
	}
	return text, nil
}

func normalizeMime(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
}
