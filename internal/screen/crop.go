package screen

import (
	"image"

	"golang.org/x/image/draw"

	apperrors "github.com/transcendia/platform/internal/errors"
)

// Crop copies rect out of img into a new RGBA image whose bounds start at (0,0).
// rect is clipped to img; an empty intersection is a capture failure.
func Crop(img image.Image, rect image.Rectangle) (*image.RGBA, error) {
	r := rect.Intersect(img.Bounds())
	if r.Empty() {
		return nil, apperrors.Newf(apperrors.CaptureFailed, "region %v outside captured frame %v", rect, img.Bounds())
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}
