package geometry

import (
	"image"
	"math"
	"testing"

	apperrors "github.com/transcendia/platform/internal/errors"
)

func TestResolveProperty(t *testing.T) {
	monitors := []Monitor{
		{ID: 0, ScaleFactor: 1},
		{ID: 1, Origin: image.Pt(1920, 0), ScaleFactor: 2},
		{ID: 2, Origin: image.Pt(-1280, 200), ScaleFactor: 1.25},
		{ID: 3, Origin: image.Pt(0, 1080), ScaleFactor: 1.5},
	}
	regions := []Region{
		{0, 0, 100, 50},
		{10, 20, 1, 1},
		{333, 77, 641, 127},
		{1, 1, 3, 7},
	}

	for _, m := range monitors {
		for _, r := range regions {
			got, err := Resolve(r, m)
			if err != nil {
				t.Fatalf("Resolve(%v, %d) error: %v", r, m.ID, err)
			}
			s := m.ScaleFactor
			wantW := int(math.Round(float64(r.W) * s))
			wantH := int(math.Round(float64(r.H) * s))
			if got.Dx() != wantW || got.Dy() != wantH {
				t.Errorf("monitor %d region %v: size = %dx%d, want %dx%d", m.ID, r, got.Dx(), got.Dy(), wantW, wantH)
			}
			off := got.Min.Sub(m.Origin)
			wantOff := image.Pt(int(math.Round(float64(r.X)*s)), int(math.Round(float64(r.Y)*s)))
			if off != wantOff {
				t.Errorf("monitor %d region %v: offset = %v, want %v", m.ID, r, off, wantOff)
			}
		}
	}
}

func TestResolveScaledRegion(t *testing.T) {
	m := Monitor{ID: 1, Origin: image.Pt(1920, 0), ScaleFactor: 2}
	got, err := Resolve(Region{X: 10, Y: 20, W: 100, H: 50}, m)
	if err != nil {
		t.Fatal(err)
	}
	want := image.Rect(1940, 40, 2140, 140)
	if got != want {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
	if local := Local(got, m); local != image.Rect(20, 40, 220, 140) {
		t.Errorf("Local = %v", local)
	}
}

func TestResolveUnsetScale(t *testing.T) {
	got, err := Resolve(Region{X: 5, Y: 5, W: 10, H: 10}, Monitor{})
	if err != nil {
		t.Fatal(err)
	}
	if got != image.Rect(5, 5, 15, 15) {
		t.Errorf("Resolve = %v, want unscaled rectangle", got)
	}
}

func TestResolveRejectsEmptyRegion(t *testing.T) {
	for _, r := range []Region{{W: 0, H: 10}, {W: 10, H: 0}, {W: -1, H: 5}} {
		if _, err := Resolve(r, Monitor{}); !apperrors.IsCode(err, apperrors.ConfigInvalid) {
			t.Errorf("Resolve(%v) error = %v, want CONFIG_INVALID", r, err)
		}
	}
}

func TestFind(t *testing.T) {
	monitors := []Monitor{{ID: 4, Name: "left"}, {ID: 7, Name: "right"}}

	m, err := Find(monitors, 7)
	if err != nil || m.Name != "right" {
		t.Errorf("Find(7) = (%v, %v), want right", m, err)
	}

	if _, err := Find(monitors, 9); !apperrors.IsCode(err, apperrors.MonitorNotFound) {
		t.Errorf("Find(9) error = %v, want MONITOR_NOT_FOUND", err)
	}
}

func TestFindOrFirst(t *testing.T) {
	monitors := []Monitor{{ID: 4, Name: "left"}, {ID: 7, Name: "right"}}

	tests := []struct {
		name        string
		monitors    []Monitor
		id          uint32
		want        string
		substituted bool
		wantErr     bool
	}{
		{"present", monitors, 7, "right", false, false},
		{"unplugged", monitors, 9, "left", true, false},
		{"none connected", nil, 0, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, sub, err := FindOrFirst(tt.monitors, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if m.Name != tt.want || sub != tt.substituted {
				t.Errorf("got (%q, %v), want (%q, %v)", m.Name, sub, tt.want, tt.substituted)
			}
		})
	}
}

func TestMonitorBounds(t *testing.T) {
	m := Monitor{Origin: image.Pt(1920, 0), Size: image.Pt(1440, 900), ScaleFactor: 2}
	if got := m.Bounds(); got != image.Rect(1920, 0, 4800, 1800) {
		t.Errorf("Bounds = %v", got)
	}
}
