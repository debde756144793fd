// Package screen captures whole monitors; callers crop the region they need.
package screen

import (
	"context"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"sync"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/geometry"
)

// Capturer lists monitors and captures one monitor at a time.
// Captured images are in device pixels with the monitor's top-left at (0,0).
type Capturer interface {
	Monitors(ctx context.Context) ([]geometry.Monitor, error)
	Capture(ctx context.Context, monitorID uint32) (image.Image, error)
	Close()
}

// PermissionChecker is implemented by capturers on platforms that gate
// screen recording behind a user grant.
type PermissionChecker interface {
	Check(ctx context.Context) bool
	Request(ctx context.Context) bool
}

// backend implements the platform specific parts.
type backend interface {
	monitors(ctx context.Context) ([]geometry.Monitor, error)
	// captureRaw writes a PNG of monitor m to path and returns the decoded
	// image, already restricted to m.
	captureRaw(ctx context.Context, m geometry.Monitor, path string) (image.Image, error)
}

// baseCapturer owns the scratch directory shared by the shell-out backends.
type baseCapturer struct {
	backend
	mu      sync.Mutex
	tempDir string
}

func newBase(b backend) *baseCapturer {
	dir, err := os.MkdirTemp("", "transcendia-capture-*")
	if err != nil {
		slog.Error("failed to create capture temp dir", "error", err)
		dir = os.TempDir()
	}
	return &baseCapturer{backend: b, tempDir: dir}
}

func (c *baseCapturer) Monitors(ctx context.Context) ([]geometry.Monitor, error) {
	ms, err := c.monitors(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "list monitors")
	}
	return ms, nil
}

func (c *baseCapturer) Capture(ctx context.Context, monitorID uint32) (image.Image, error) {
	ms, err := c.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	m, err := geometry.Find(ms, monitorID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.CreateTemp(c.tempDir, "frame-*.png")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CaptureFailed, "create frame file")
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	img, err := c.captureRaw(ctx, m, path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "capture monitor %d", monitorID)
	}
	return normalize(img), nil
}

func (c *baseCapturer) Close() {
	if c.tempDir != os.TempDir() {
		os.RemoveAll(c.tempDir)
	}
}

// decodeFile reads an image written by a screenshot tool.
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// normalize shifts img so its bounds start at (0,0).
func normalize(img image.Image) image.Image {
	if img.Bounds().Min == (image.Point{}) || img.Bounds().Empty() {
		return img
	}
	out, err := Crop(img, img.Bounds())
	if err != nil {
		return img
	}
	return out
}
