// Package ocr defines the recognition engine boundary and the text
// normalisation applied to every engine's output.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/image/draw"

	apperrors "github.com/transcendia/platform/internal/errors"
)

// MinFragmentRunes is the shortest recognized fragment kept; shorter ones are
// almost always noise from borders and icons.
const MinFragmentRunes = 2

// Prepared is an engine-ready frame: a grayscale PNG.
type Prepared struct {
	PNG    []byte
	Width  int
	Height int
}

// Recognizer is an OCR engine.
type Recognizer interface {
	Prepare(img image.Image) (Prepared, error)
	Recognize(ctx context.Context, in Prepared) ([]string, error)
	Close() error
}

// Options configures an engine opened through the registry.
type Options struct {
	Addr      string   // remote engine address
	ModelDir  string   // provisioned model files
	Languages []string // engine language hints
}

// Factory builds a Recognizer.
type Factory func(Options) (Recognizer, error)

var (
	mu      sync.RWMutex
	engines = map[string]Factory{}
)

// Register makes an engine available under name. Engines call it from init.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	engines[name] = f
}

// Open builds the engine registered as name.
func Open(name string, opts Options) (Recognizer, error) {
	mu.RLock()
	f, ok := engines[name]
	mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ConfigInvalid, "unknown ocr backend %q (available: %s)", name, strings.Join(Engines(), ", "))
	}
	return f(opts)
}

// Engines lists registered engine names.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EncodeGray converts img to grayscale and PNG-encodes it.
func EncodeGray(img image.Image) (Prepared, error) {
	b := img.Bounds()
	if b.Empty() {
		return Prepared{}, apperrors.New(apperrors.RecognitionFailed, "empty frame")
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return Prepared{}, apperrors.Wrap(err, apperrors.RecognitionFailed, "encode frame")
	}
	return Prepared{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// JoinLines trims each line, drops fragments shorter than MinFragmentRunes
// and joins the rest with "\n".
func JoinLines(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) < MinFragmentRunes {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

// SplitLines breaks engine output that arrives as one block into lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func (p Prepared) String() string {
	return fmt.Sprintf("%dx%d png (%d bytes)", p.Width, p.Height, len(p.PNG))
}
