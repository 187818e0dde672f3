package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	// Registered for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
)

const maxSnapshotBytes = 16 << 20

// SnapshotCamera is a network camera that serves still images over HTTP.
type SnapshotCamera struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewSnapshotCamera(url, token string, timeout time.Duration) *SnapshotCamera {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SnapshotCamera{
		url:        strings.TrimSpace(url),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Begin checks that the camera answers and hands out a capture session.
func (c *SnapshotCamera) Begin(ctx context.Context) (ports.CaptureSession, error) {
	if _, err := c.snapshot(ctx); err != nil {
		return nil, err
	}
	return &cameraSession{camera: c, streaming: true}, nil
}

func (c *SnapshotCamera) snapshot(ctx context.Context) (image.Image, error) {
	const op = "camera snapshot"
	if c.url == "" {
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, errors.New("no camera configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, fmt.Errorf("camera unreachable: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, fmt.Errorf("camera access denied: %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, fmt.Errorf("camera status: %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, fmt.Errorf("read snapshot: %w", err))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCameraUnavailable, op, fmt.Errorf("decode snapshot: %w", err))
	}
	return img, nil
}

type cameraSession struct {
	camera *SnapshotCamera

	mu        sync.Mutex
	streaming bool
	closed    bool
	frame     image.Image
}

// Capture grabs a still and stops streaming; the frame waits for Crop.
func (s *cameraSession) Capture(ctx context.Context) (domain.Frame, error) {
	s.mu.Lock()
	if s.closed || !s.streaming {
		s.mu.Unlock()
		return domain.Frame{}, domain.WrapError(domain.ErrCameraUnavailable, "capture", errors.New("camera stream is not active"))
	}
	s.mu.Unlock()

	img, err := s.camera.snapshot(ctx)
	if err != nil {
		return domain.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Frame{}, domain.WrapError(domain.ErrCameraUnavailable, "capture", errors.New("camera was released"))
	}
	s.streaming = false
	s.frame = img
	bounds := img.Bounds()
	return domain.Frame{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		DefaultCrop: DefaultCrop(bounds.Dx(), bounds.Dy()),
	}, nil
}

func (s *cameraSession) Crop(region *domain.Region) (domain.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidTransition, "crop", errors.New("no frame captured"))
	}

	bounds := s.frame.Bounds()
	target := DefaultCrop(bounds.Dx(), bounds.Dy())
	if region != nil {
		target = *region
	}
	if target.IsEmpty() {
		return domain.Payload{}, domain.WrapError(domain.ErrInvalidInput, "crop", errors.New("crop region must have a positive size"))
	}
	data, err := cropPNG(s.frame, target)
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{
		FileName: fmt.Sprintf("camera-%d.png", time.Now().UTC().Unix()),
		MimeType: "image/png",
		Source:   domain.SourceCamera,
		Data:     data,
	}, nil
}

// Close releases the stream and drops the frame. It is safe to call repeatedly.
func (s *cameraSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.streaming = false
	s.frame = nil
	return nil
}
