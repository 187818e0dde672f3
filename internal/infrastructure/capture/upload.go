package capture

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

const DefaultMaxUploadBytes = 20 << 20

// Uploader turns an uploaded file into a payload. The content type is sniffed;
// the declared type is only used when sniffing cannot tell.
type Uploader struct {
	maxBytes int64
}

func NewUploader(maxBytes int64) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Uploader{maxBytes: maxBytes}
}

func (u *Uploader) FromUpload(filename, declaredMime string, body io.Reader) (domain.Payload, error) {
	const op = "read upload"
	if body == nil {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("file is required"))
	}
	data, err := io.ReadAll(io.LimitReader(body, u.maxBytes+1))
	if err != nil {
		return domain.Payload{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(data) == 0 {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidInput, op, errors.New("file is empty"))
	}
	if int64(len(data)) > u.maxBytes {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("file exceeds %d bytes", u.maxBytes))
	}

	mimeType := baseMime(mimetype.Detect(data).String())
	if mimeType == "application/octet-stream" {
		mimeType = baseMime(declaredMime)
	}
	if !acceptedMime(mimeType) {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("unsupported file type %q; upload a PNG, JPEG, GIF, BMP, TIFF or WebP image or a PDF", mimeType))
	}

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" || name == "" {
		name = "document"
		if known := mimetype.Lookup(mimeType); known != nil {
			name += known.Extension()
		}
	}
	return domain.Payload{
		FileName: name,
		MimeType: mimeType,
		Source:   domain.SourceFileUpload,
		Data:     data,
	}, nil
}

// acceptedMimeTypes are the raster formats the OCR decoders register, plus PDF.
var acceptedMimeTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/bmp":       true,
	"image/x-bmp":     true,
	"image/x-ms-bmp":  true,
	"image/tiff":      true,
	"image/webp":      true,
	"application/pdf": true,
}

func acceptedMime(mimeType string) bool {
	return acceptedMimeTypes[mimeType]
}

func baseMime(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
}
