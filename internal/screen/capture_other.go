//go:build !linux && !darwin

package screen

import (
	"context"
	"image"
	"runtime"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/geometry"
)

// TODO: Windows capture via DXGI desktop duplication.
type unsupportedBackend struct{}

// New creates the platform capturer.
func New() Capturer {
	return newBase(unsupportedBackend{})
}

func (unsupportedBackend) monitors(context.Context) ([]geometry.Monitor, error) {
	return nil, apperrors.Newf(apperrors.Unavailable, "screen capture is not supported on %s", runtime.GOOS)
}

func (unsupportedBackend) captureRaw(context.Context, geometry.Monitor, string) (image.Image, error) {
	return nil, apperrors.Newf(apperrors.Unavailable, "screen capture is not supported on %s", runtime.GOOS)
}
