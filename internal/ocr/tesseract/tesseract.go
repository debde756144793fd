//go:build tesseract

package tesseract

import (
	"context"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/ocr"
)

func init() {
	ocr.Register("tesseract", func(o ocr.Options) (ocr.Recognizer, error) {
		return New(o.Languages...), nil
	})
}

// Engine runs Tesseract in-process. One client is reused across ticks.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	langs  []string
}

// New creates an engine for the given Tesseract language codes ("eng", "jpn").
func New(langs ...string) *Engine {
	return &Engine{client: gosseract.NewClient(), langs: langs}
}

func (e *Engine) Prepare(img image.Image) (ocr.Prepared, error) {
	return ocr.EncodeGray(img)
}

func (e *Engine) Recognize(ctx context.Context, in ocr.Prepared) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.langs) > 0 {
		if err := e.client.SetLanguage(e.langs...); err != nil {
			return nil, apperrors.Wrap(err, apperrors.RecognitionFailed, "set languages")
		}
	}
	if err := e.client.SetImageFromBytes(in.PNG); err != nil {
		return nil, apperrors.Wrap(err, apperrors.RecognitionFailed, "set image")
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.RecognitionFailed, "recognize lines")
	}
	lines := make([]string, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, b.Word)
	}
	return lines, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
