// Package screen runs one tick of the translation pipeline:
// capture, recognize, debounce, translate, publish.
package screen

import (
	"context"
	"image"
	"log/slog"

	"github.com/corona10/goimagehash"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/events"
	"github.com/transcendia/platform/internal/geometry"
	"github.com/transcendia/platform/internal/ocr"
	screencap "github.com/transcendia/platform/internal/screen"
	"github.com/transcendia/platform/internal/syncx"
	"github.com/transcendia/platform/internal/trace"
	"github.com/transcendia/platform/internal/translate"
)

// MaxHashDistance is the perceptual hash distance at or below which two
// frames count as the same picture.
const MaxHashDistance = 2

// Publisher receives the translated text.
type Publisher interface {
	Publish(e events.Event)
}

// Target is what a tick looks at and which language it produces.
type Target struct {
	Monitor  uint32
	Region   geometry.Region
	Language string
}

// Outcome is how a tick ended.
type Outcome int

const (
	Published Outcome = iota
	Unchanged         // same text as the previous tick
	Similar           // frame skipped by the perceptual hash
	Failed
)

func (o Outcome) String() string {
	return [...]string{"published", "unchanged", "similar", "failed"}[o]
}

// Text is the last published pair.
type Text struct {
	Source     string
	Translated string
	Language   string
}

// Processor is driven by one loop goroutine; only LatestText may be called
// concurrently.
type Processor struct {
	capturer   screencap.Capturer
	ocr        ocr.Recognizer
	translator translate.Translator
	pub        Publisher

	skipSimilar bool
	lastHash    *goimagehash.ImageHash

	// previous is the text of the last published tick.
	previous    string
	previousSet bool
	previousFor string

	latest *syncx.Value[Text]
}

// Option customises a Processor.
type Option func(*Processor)

// WithSimilarFrameSkip skips recognition when the cropped frame looks the
// same as the last recognized one.
func WithSimilarFrameSkip(on bool) Option { return func(p *Processor) { p.skipSimilar = on } }

// NewProcessor creates a tick processor.
func NewProcessor(capturer screencap.Capturer, rec ocr.Recognizer, tr translate.Translator, pub Publisher, opts ...Option) *Processor {
	p := &Processor{
		capturer:   capturer,
		ocr:        rec,
		translator: tr,
		pub:        pub,
		latest:     syncx.NewValue(Text{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Reset forgets the change detection state. Call it before a new run.
func (p *Processor) Reset() {
	p.previous, p.previousSet, p.previousFor = "", false, ""
	p.lastHash = nil
}

// LatestText returns the last published translation.
func (p *Processor) LatestText() Text { return p.latest.Load() }

// Tick runs the pipeline once. Errors are returned for logging only; the
// previously published text stays on screen.
func (p *Processor) Tick(ctx context.Context, t Target) (Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "tick")
	defer span.End()
	log := trace.Logger(ctx)

	frame, err := p.capture(ctx, t, log)
	if err != nil {
		span.Fail(err)
		return Failed, err
	}
	if p.skipSimilar && p.similar(frame) {
		span.SetAttr("outcome", Similar.String())
		return Similar, nil
	}

	in, err := p.ocr.Prepare(frame)
	if err != nil {
		span.Fail(err)
		return Failed, apperrors.Wrap(err, apperrors.RecognitionFailed, "prepare frame")
	}
	lines, err := p.ocr.Recognize(ctx, in)
	if err != nil {
		span.Fail(err)
		if !apperrors.IsCode(err, apperrors.RecognitionFailed) {
			err = apperrors.Wrap(err, apperrors.RecognitionFailed, "recognize")
		}
		return Failed, err
	}
	text := ocr.JoinLines(lines)
	span.SetAttr("lines", len(lines))

	if p.previousSet && text == p.previous && t.Language == p.previousFor {
		span.SetAttr("outcome", Unchanged.String())
		return Unchanged, nil
	}

	translated, err := p.translator.Translate(ctx, text, t.Language)
	if err != nil {
		span.Fail(err)
		return Failed, err
	}

	out := Text{Source: text, Translated: translated, Language: t.Language}
	p.pub.Publish(events.Event{Type: events.NewTranslatedText, Payload: events.TranslatedText{
		Text:     translated,
		Source:   text,
		Language: t.Language,
	}})
	p.latest.Store(out)
	p.previous, p.previousSet, p.previousFor = text, true, t.Language
	span.SetAttr("outcome", Published.String())
	return Published, nil
}

// capture re-queries the monitors, resolves the region and crops it.
func (p *Processor) capture(ctx context.Context, t Target, log *slog.Logger) (*image.RGBA, error) {
	monitors, err := p.capturer.Monitors(ctx)
	if err != nil {
		return nil, err
	}
	m, substituted, err := geometry.FindOrFirst(monitors, t.Monitor)
	if err != nil {
		return nil, err
	}
	if substituted {
		log.Warn("monitor not found, using first monitor", "wanted", t.Monitor, "using", m.ID)
	}

	abs, err := geometry.Resolve(t.Region, m)
	if err != nil {
		return nil, err
	}
	img, err := p.capturer.Capture(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return screencap.Crop(img, geometry.Local(abs, m))
}

// similar hashes the frame and reports whether it matches the previous one.
func (p *Processor) similar(img image.Image) bool {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}
	if p.lastHash == nil {
		p.lastHash = hash
		return false
	}
	dist, err := p.lastHash.Distance(hash)
	if err != nil {
		p.lastHash = hash
		return false
	}
	if dist <= MaxHashDistance {
		slog.Debug("skipping recognition of similar frame", "distance", dist)
		return true
	}
	p.lastHash = hash
	return false
}
