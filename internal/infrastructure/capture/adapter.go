package capture

import (
	"context"
	"errors"
	"io"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/core/ports"
)

// Camera opens capture sessions on a physical or network camera.
type Camera interface {
	Begin(ctx context.Context) (ports.CaptureSession, error)
}

// Adapter combines file uploads and an optional camera into ports.DocumentCapture.
type Adapter struct {
	uploader *Uploader
	camera   Camera
}

func NewAdapter(uploader *Uploader, camera Camera) *Adapter {
	if uploader == nil {
		uploader = NewUploader(0)
	}
	return &Adapter{uploader: uploader, camera: camera}
}

func (a *Adapter) FromUpload(filename, mimeType string, body io.Reader) (domain.Payload, error) {
	return a.uploader.FromUpload(filename, mimeType, body)
}

func (a *Adapter) BeginCamera(ctx context.Context) (ports.CaptureSession, error) {
	if a.camera == nil {
		return nil, domain.WrapError(domain.ErrCameraUnavailable, "begin camera", errors.New("no camera configured"))
	}
	return a.camera.Begin(ctx)
}
