package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/geometry"
)

func makeFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	return img
}

func TestCrop(t *testing.T) {
	frame := makeFrame(200, 100)

	got, err := Crop(frame, image.Rect(10, 20, 60, 45))
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != image.Rect(0, 0, 50, 25) {
		t.Errorf("bounds = %v, want 50x25 at origin", got.Bounds())
	}
	if c := got.RGBAAt(0, 0); c.R != 10 || c.G != 20 {
		t.Errorf("top-left pixel = %v, want source (10,20)", c)
	}
}

func TestCropClipsToFrame(t *testing.T) {
	got, err := Crop(makeFrame(100, 100), image.Rect(80, 80, 150, 150))
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds().Dx() != 20 || got.Bounds().Dy() != 20 {
		t.Errorf("bounds = %v, want 20x20", got.Bounds())
	}
}

func TestCropOutsideFrame(t *testing.T) {
	_, err := Crop(makeFrame(100, 100), image.Rect(200, 200, 300, 300))
	if !apperrors.IsCode(err, apperrors.CaptureFailed) {
		t.Errorf("err = %v, want CAPTURE_FAILED", err)
	}
}

func TestNormalizeShiftsOrigin(t *testing.T) {
	sub := makeFrame(100, 100).SubImage(image.Rect(30, 40, 60, 50))
	got := normalize(sub)
	if got.Bounds() != image.Rect(0, 0, 30, 10) {
		t.Errorf("bounds = %v, want origin-based", got.Bounds())
	}
}

func TestParseXrandrMonitors(t *testing.T) {
	out := "Monitors: 2\n" +
		" 0: +*DP-1 2560/597x1440/336+0+0  DP-1\n" +
		" 1: +HDMI-1 1920/531x1080/299+2560+180  HDMI-1\n"

	ms, err := parseXrandrMonitors(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d monitors, want 2", len(ms))
	}
	want := geometry.Monitor{ID: 1, Name: "HDMI-1", Origin: image.Pt(2560, 180), Size: image.Pt(1920, 1080), ScaleFactor: 1}
	if ms[1] != want {
		t.Errorf("monitor 1 = %+v, want %+v", ms[1], want)
	}
	if !ms[0].Primary || ms[1].Primary {
		t.Error("only DP-1 should be primary")
	}
}

func TestParseXrandrMonitorsEmpty(t *testing.T) {
	if _, err := parseXrandrMonitors("Monitors: 0\n"); err == nil {
		t.Error("expected error for no monitors")
	}
}

const displayProfileXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<array>
  <dict>
    <key>_items</key>
    <array>
      <dict>
        <key>_name</key><string>Apple M1</string>
        <key>spdisplays_ndrvs</key>
        <array>
          <dict>
            <key>_name</key><string>DELL U2720Q</string>
            <key>_spdisplays_pixels</key><string>3840 x 2160</string>
            <key>_spdisplays_resolution</key><string>1920 x 1080 @ 60.00Hz</string>
          </dict>
          <dict>
            <key>_name</key><string>Color LCD</string>
            <key>_spdisplays_pixels</key><string>2880 x 1800</string>
            <key>_spdisplays_resolution</key><string>1440 x 900 @ 60.00Hz</string>
            <key>spdisplays_main</key><string>spdisplays_yes</string>
          </dict>
        </array>
      </dict>
    </array>
  </dict>
</array>
</plist>`

func TestParseDisplayProfile(t *testing.T) {
	ms, err := parseDisplayProfile([]byte(displayProfileXML))
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d displays, want 2", len(ms))
	}
	if ms[0].Name != "Color LCD" || ms[0].ID != 0 || !ms[0].Primary {
		t.Errorf("first display = %+v, want main Color LCD with id 0", ms[0])
	}
	if ms[0].ScaleFactor != 2 || ms[0].Size != image.Pt(1440, 900) {
		t.Errorf("main display scale/size = %v/%v", ms[0].ScaleFactor, ms[0].Size)
	}
	if ms[1].Name != "DELL U2720Q" || ms[1].ID != 1 {
		t.Errorf("second display = %+v", ms[1])
	}
}

func TestParseDims(t *testing.T) {
	tests := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"2880 x 1800", 2880, 1800, true},
		{"1440 x 900 @ 60.00Hz", 1440, 900, true},
		{"", 0, 0, false},
		{"spdisplays_unknown", 0, 0, false},
	}
	for _, tt := range tests {
		w, h, ok := parseDims(tt.in)
		if w != tt.w || h != tt.h || ok != tt.ok {
			t.Errorf("parseDims(%q) = (%d,%d,%v), want (%d,%d,%v)", tt.in, w, h, ok, tt.w, tt.h, tt.ok)
		}
	}
}

type fakeBackend struct {
	list     []geometry.Monitor
	frame    image.Image
	err      error
	captured []uint32
}

func (f *fakeBackend) monitors(context.Context) ([]geometry.Monitor, error) {
	return f.list, nil
}

func (f *fakeBackend) captureRaw(_ context.Context, m geometry.Monitor, path string) (image.Image, error) {
	f.captured = append(f.captured, m.ID)
	if f.err != nil {
		return nil, f.err
	}
	out, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := png.Encode(out, f.frame); err != nil {
		return nil, err
	}
	return decodeFile(path)
}

func TestBaseCapturer(t *testing.T) {
	fb := &fakeBackend{
		list:  []geometry.Monitor{{ID: 3, Name: "left"}},
		frame: makeFrame(40, 30),
	}
	c := newBase(fb)
	dir := c.tempDir
	ctx := context.Background()

	img, err := c.Capture(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("bounds = %v", img.Bounds())
	}

	if _, err := c.Capture(ctx, 9); !apperrors.IsCode(err, apperrors.MonitorNotFound) {
		t.Errorf("unknown monitor err = %v, want MONITOR_NOT_FOUND", err)
	}

	fb.err = errors.New("display asleep")
	if _, err := c.Capture(ctx, 3); !apperrors.IsCode(err, apperrors.CaptureFailed) {
		t.Errorf("backend failure err = %v, want CAPTURE_FAILED", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir holds %d leftover frames", len(entries))
	}

	c.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("temp directory should be removed after Close")
	}
}
