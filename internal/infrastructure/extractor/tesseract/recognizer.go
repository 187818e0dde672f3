package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// DefaultConcurrency bounds the Tesseract runs in flight when no limit is configured.
const DefaultConcurrency = 3

// Recognizer runs Tesseract over image payloads, one client per call. A run holds
// a slot until Tesseract returns, including runs whose caller already gave up.
type Recognizer struct {
	languages     []string
	clientFactory func() *gosseract.Client
	engine        func(data []byte) (string, error)
	slots         chan struct{}
}

type Option func(*Recognizer)

func WithLanguages(languages ...string) Option {
	return func(r *Recognizer) {
		r.languages = nil
		for _, lang := range languages {
			if lang = strings.TrimSpace(lang); lang != "" {
				r.languages = append(r.languages, lang)
			}
		}
	}
}

// WithConcurrency limits how many Tesseract runs execute at once.
func WithConcurrency(n int) Option {
	return func(r *Recognizer) {
		if n > 0 {
			r.slots = make(chan struct{}, n)
		}
	}
}

func NewRecognizer(opts ...Option) *Recognizer {
	r := &Recognizer{
		clientFactory: gosseract.NewClient,
		slots:         make(chan struct{}, DefaultConcurrency),
	}
	r.engine = r.recognize
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type result struct {
	text string
	err  error
}

// Recognize returns when the context is done even if Tesseract is still busy; the
// late result is dropped.
func (r *Recognizer) Recognize(ctx context.Context, payload domain.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := normalizeImage(payload.Data)
	if err != nil {
		return "", fmt.Errorf("prepare %s: %w", payload.FileName, err)
	}

	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-r.slots }()
		text, err := r.engine(data)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

func (r *Recognizer) recognize(data []byte) (string, error) {
	c := r.clientFactory()
	defer c.Close()

	if len(r.languages) > 0 {
		if err := c.SetLanguage(r.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// normalizeImage re-encodes formats Leptonica may not read (WebP, BMP variants) as PNG.
func normalizeImage(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	switch format {
	case "png", "jpeg", "tiff":
		return data, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
