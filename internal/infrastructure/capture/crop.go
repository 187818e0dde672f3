package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

// DefaultCropRatio is the share of each frame dimension kept by the default crop.
const DefaultCropRatio = 0.8

// DefaultCrop centres a region covering 80% of the frame in each dimension.
func DefaultCrop(width, height int) domain.Region {
	w := int(float64(width) * DefaultCropRatio)
	h := int(float64(height) * DefaultCropRatio)
	return domain.Region{
		X:      (width - w) / 2,
		Y:      (height - h) / 2,
		Width:  w,
		Height: h,
	}
}

// cropPNG cuts region out of img and encodes it as PNG. The origin must lie inside
// the frame; width and height are clamped to the frame edge.
func cropPNG(img image.Image, region domain.Region) ([]byte, error) {
	bounds := img.Bounds()
	frameW, frameH := bounds.Dx(), bounds.Dy()
	if region.X < 0 || region.Y < 0 || region.X >= frameW || region.Y >= frameH ||
		region.Width <= 0 || region.Height <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "crop", fmt.Errorf("region %+v is outside the %dx%d frame", region, frameW, frameH))
	}
	width := min(region.Width, frameW-region.X)
	height := min(region.Height, frameH-region.Y)
	rect := image.Rect(0, 0, width, height).Add(bounds.Min.Add(image.Pt(region.X, region.Y)))

	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("crop: image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, subImg.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
