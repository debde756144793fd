// Package geometry maps a logical capture region onto device pixels of a monitor.
package geometry

import (
	"fmt"
	"image"
	"math"

	apperrors "github.com/transcendia/platform/internal/errors"
)

// Region is a rectangle in logical pixels relative to the selected monitor's origin.
type Region struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// Validate rejects empty regions.
func (r Region) Validate() error {
	if r.W <= 0 || r.H <= 0 {
		return apperrors.Newf(apperrors.ConfigInvalid, "region %s must have positive width and height", r)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.W, r.H, r.X, r.Y)
}

// Monitor describes one display as reported by the capture backend.
// Origin is in device pixels; Size is in logical pixels.
type Monitor struct {
	ID          uint32      `json:"id"`
	Name        string      `json:"name"`
	Origin      image.Point `json:"origin"`
	Size        image.Point `json:"size"`
	ScaleFactor float64     `json:"scale_factor"`
	Primary     bool        `json:"primary"`
}

// Scale returns the monitor's scale factor, treating unset values as 1.
func (m Monitor) Scale() float64 {
	if m.ScaleFactor <= 0 {
		return 1
	}
	return m.ScaleFactor
}

// Bounds returns the monitor's absolute rectangle in device pixels.
func (m Monitor) Bounds() image.Rectangle {
	s := m.Scale()
	return image.Rect(0, 0, scale(m.Size.X, s), scale(m.Size.Y, s)).Add(m.Origin)
}

// Resolve converts r into an absolute device-pixel rectangle on m.
// Each term is scaled and rounded separately so the offset from the
// monitor origin is exactly round(r.X*s), round(r.Y*s).
func Resolve(r Region, m Monitor) (image.Rectangle, error) {
	if err := r.Validate(); err != nil {
		return image.Rectangle{}, err
	}
	s := m.Scale()
	min := image.Pt(m.Origin.X+scale(r.X, s), m.Origin.Y+scale(r.Y, s))
	return image.Rectangle{Min: min, Max: min.Add(image.Pt(scale(r.W, s), scale(r.H, s)))}, nil
}

// Local translates an absolute rectangle into m's capture coordinates,
// where the monitor's top-left pixel is (0,0).
func Local(abs image.Rectangle, m Monitor) image.Rectangle {
	return abs.Sub(m.Origin)
}

// Find returns the monitor with the given id.
func Find(monitors []Monitor, id uint32) (Monitor, error) {
	for _, m := range monitors {
		if m.ID == id {
			return m, nil
		}
	}
	return Monitor{}, apperrors.Newf(apperrors.MonitorNotFound, "monitor %d is not connected", id).
		WithMetadata("available", fmt.Sprint(len(monitors)))
}

// FindOrFirst is Find with the first-monitor fallback. substituted reports whether
// the fallback was used; err is non-nil only when no monitor is connected.
func FindOrFirst(monitors []Monitor, id uint32) (m Monitor, substituted bool, err error) {
	m, err = Find(monitors, id)
	if err == nil {
		return m, false, nil
	}
	if len(monitors) == 0 {
		return Monitor{}, false, err
	}
	return monitors[0], true, nil
}

func scale(v int, s float64) int {
	return int(math.Round(float64(v) * s))
}
