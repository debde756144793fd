//go:build darwin

package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"

	"github.com/transcendia/platform/internal/geometry"
)

type darwinBackend struct{}

// darwinCapturer adds the screen recording permission check.
type darwinCapturer struct {
	*baseCapturer
}

// New creates the platform capturer.
func New() Capturer {
	return darwinCapturer{newBase(darwinBackend{})}
}

func (darwinBackend) monitors(ctx context.Context) ([]geometry.Monitor, error) {
	out, err := exec.CommandContext(ctx, "system_profiler", "SPDisplaysDataType", "-xml").Output()
	if err != nil {
		return nil, fmt.Errorf("system_profiler: %w", err)
	}
	return parseDisplayProfile(out)
}

func (darwinBackend) captureRaw(ctx context.Context, m geometry.Monitor, path string) (image.Image, error) {
	// -x: no sound, -D: 1-based display index
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-D", strconv.Itoa(int(m.ID)+1), path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screencapture: %w: %s", err, stderr.String())
	}
	return decodeFile(path)
}

func (darwinCapturer) Check(context.Context) bool { return preflightScreenCapture() }
func (darwinCapturer) Request(context.Context) bool { return requestScreenCapture() }
