//go:build linux

package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"

	"github.com/transcendia/platform/internal/geometry"
)

// linuxBackend shells out to X11 tools. Screenshot tools grab the whole
// desktop, so the frame is cut down to the requested monitor.
type linuxBackend struct{}

// New creates the platform capturer.
func New() Capturer {
	return newBase(linuxBackend{})
}

func (linuxBackend) monitors(ctx context.Context) ([]geometry.Monitor, error) {
	out, err := exec.CommandContext(ctx, "xrandr", "--listmonitors").Output()
	if err != nil {
		return nil, fmt.Errorf("xrandr: %w", err)
	}
	return parseXrandrMonitors(string(out))
}

func (linuxBackend) captureRaw(ctx context.Context, m geometry.Monitor, path string) (image.Image, error) {
	var cmd *exec.Cmd
	switch {
	case hasTool("gnome-screenshot"):
		cmd = exec.CommandContext(ctx, "gnome-screenshot", "-f", path)
	case hasTool("scrot"):
		cmd = exec.CommandContext(ctx, "scrot", "-o", path)
	case hasTool("import"):
		cmd = exec.CommandContext(ctx, "import", "-window", "root", path)
	default:
		return nil, fmt.Errorf("no screenshot tool found (install gnome-screenshot, scrot or imagemagick)")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", cmd.Args[0], err, stderr.String())
	}

	desktop, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return Crop(desktop, m.Bounds())
}

func hasTool(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
