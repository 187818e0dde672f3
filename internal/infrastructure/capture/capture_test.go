package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, height/2, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFromUploadSniffsContentType(t *testing.T) {
	payload, err := NewUploader(0).FromUpload("scan.bin", "application/octet-stream", bytes.NewReader(pngBytes(t, 4, 4)))
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	if payload.MimeType != "image/png" || payload.Source != domain.SourceFileUpload {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestFromUploadRejectsUnsupportedType(t *testing.T) {
	_, err := NewUploader(0).FromUpload("notes.txt", "text/plain", strings.NewReader("just words"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFromUploadRejectsVectorImages(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><text x="0" y="10">INV-1</text></svg>`
	_, err := NewUploader(0).FromUpload("scan.svg", "image/svg+xml", strings.NewReader(svg))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for svg, got %v", err)
	}
}

func TestFromUploadAcceptsPDF(t *testing.T) {
	payload, err := NewUploader(0).FromUpload("boe.pdf", "", strings.NewReader("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"))
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	if payload.MimeType != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", payload.MimeType)
	}
}

func TestFromUploadEnforcesLimit(t *testing.T) {
	_, err := NewUploader(16).FromUpload("big.png", "image/png", bytes.NewReader(pngBytes(t, 64, 64)))
	if !domain.IsKind(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestFromUploadRejectsEmptyFile(t *testing.T) {
	_, err := NewUploader(0).FromUpload("empty.pdf", "application/pdf", strings.NewReader(""))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDefaultCropIsCentered(t *testing.T) {
	got := DefaultCrop(1000, 500)
	want := domain.Region{X: 100, Y: 50, Width: 800, Height: 400}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCameraCaptureAndCrop(t *testing.T) {
	frame := pngBytes(t, 200, 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(frame)
	}))
	defer server.Close()

	session, err := NewSnapshotCamera(server.URL, "", time.Second).Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer session.Close()

	got, err := session.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if got.Width != 200 || got.Height != 100 || got.DefaultCrop != DefaultCrop(200, 100) {
		t.Fatalf("unexpected frame: %+v", got)
	}

	payload, err := session.Crop(&domain.Region{X: 150, Y: 50, Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(payload.Data))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 50 {
		t.Fatalf("expected crop clamped to 50x50, got %v", img.Bounds())
	}
	if payload.Source != domain.SourceCamera || payload.MimeType != "image/png" {
		t.Fatalf("unexpected payload metadata: %+v", payload)
	}

	if _, err := session.Capture(context.Background()); !domain.IsKind(err, domain.ErrCameraUnavailable) {
		t.Fatalf("expected stream released after capture, got %v", err)
	}
}

func TestCameraCropOutsideFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(t, 20, 20))
	}))
	defer server.Close()

	session, err := NewSnapshotCamera(server.URL, "", time.Second).Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := session.Capture(context.Background()); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	_, err = session.Crop(&domain.Region{X: 50, Y: 50, Width: 10, Height: 10})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCropRejectsOverflowingRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	regions := []domain.Region{
		{X: math.MaxInt - 5, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: math.MaxInt - 5, Width: 10, Height: 10},
		{X: -5, Y: 0, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: -10, Height: 10},
	}
	for _, region := range regions {
		if _, err := cropPNG(img, region); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("region %+v: expected ErrInvalidInput, got %v", region, err)
		}
	}
}

func TestCropClampsLargeSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	data, err := cropPNG(img, domain.Region{X: 90, Y: 40, Width: math.MaxInt, Height: math.MaxInt})
	if err != nil {
		t.Fatalf("cropPNG() error = %v", err)
	}
	cropped, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if cropped.Bounds().Dx() != 10 || cropped.Bounds().Dy() != 10 {
		t.Fatalf("expected 10x10 crop, got %v", cropped.Bounds())
	}
}

func TestCameraAccessDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewSnapshotCamera(server.URL, "", time.Second).Begin(context.Background())
	if !domain.IsKind(err, domain.ErrCameraUnavailable) || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestAdapterWithoutCamera(t *testing.T) {
	_, err := NewAdapter(nil, nil).BeginCamera(context.Background())
	if !domain.IsKind(err, domain.ErrCameraUnavailable) {
		t.Fatalf("expected ErrCameraUnavailable, got %v", err)
	}
}

func TestCloseIsIdempotentAndDropsFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pngBytes(t, 10, 10))
	}))
	defer server.Close()

	session, err := NewSnapshotCamera(server.URL, "", time.Second).Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := session.Capture(context.Background()); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := session.Crop(nil); !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected frame dropped after close, got %v", err)
	}
}
