package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transcendia/platform/internal/config"
	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/events"
	"github.com/transcendia/platform/internal/geometry"
	"github.com/transcendia/platform/internal/ocr"
	"github.com/transcendia/platform/internal/orchestrator/screen"
	screencap "github.com/transcendia/platform/internal/screen"
	"github.com/transcendia/platform/internal/syncx"
	"github.com/transcendia/platform/internal/trace"
	"github.com/transcendia/platform/internal/translate"
)

// Deps are the providers the runtime drives.
type Deps struct {
	Capturer   screencap.Capturer
	Recognizer ocr.Recognizer
	Translator translate.Translator
	Bus        *events.Bus
}

// Options are the initial live settings.
type Options struct {
	Interval          time.Duration
	Language          string
	SkipSimilarFrames bool
}

// Session is what a run captures and where it sends the result.
type Session struct {
	Monitor  uint32          `json:"monitor"`
	Region   geometry.Region `json:"region"`
	Language string          `json:"language,omitempty"`
}

// Status is a point-in-time view of the runtime.
type Status struct {
	Running  bool    `json:"running"`
	Interval float64 `json:"interval_seconds"`
	Language string  `json:"language"`
	Session  Session `json:"session"`
	Latest   string  `json:"latest,omitempty"`
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runtime is the single translation runtime of the process. Start, Stop and
// Apply may be called from any goroutine.
type Runtime struct {
	capturer screencap.Capturer
	bus      *events.Bus
	proc     *screen.Processor

	interval atomic.Int64
	language *syncx.Value[string]
	running  atomic.Bool

	// mu serialises lifecycle changes; the loop never takes it.
	mu      sync.Mutex
	cur     *run
	session Session
	base    context.Context

	onLoop func() // test hook, called once per loop entry
}

// New creates a stopped runtime.
func New(deps Deps, opts Options) *Runtime {
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	r := &Runtime{
		capturer: deps.Capturer,
		bus:      deps.Bus,
		proc: screen.NewProcessor(deps.Capturer, deps.Recognizer, deps.Translator, deps.Bus,
			screen.WithSimilarFrameSkip(opts.SkipSimilarFrames)),
		language: syncx.NewValue(opts.Language),
		base:     context.Background(),
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	r.Update(opts.Interval)
	return r
}

// Start launches the scheduling loop for s. It returns false, doing
// nothing, when a loop is already running. ctx bounds the loop's lifetime.
func (r *Runtime) Start(ctx context.Context, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return false
	}
	// A stopped loop may still be finishing its last tick.
	if r.cur != nil {
		<-r.cur.done
	}
	if !r.running.CompareAndSwap(false, true) {
		return false
	}

	if s.Language != "" {
		r.language.Store(s.Language)
	}
	s.Language = ""
	r.session = s
	r.base = ctx
	r.proc.Reset()

	runCtx, cancel := context.WithCancel(trace.WithContext(ctx, trace.New()))
	cur := &run{cancel: cancel, done: make(chan struct{})}
	r.cur = cur
	go r.loop(runCtx, cur, s)

	trace.Logger(runCtx).Info("translation runtime started",
		"monitor", s.Monitor, "region", s.Region.String(), "interval", r.Interval(), "language", r.Language())
	r.bus.Publish(events.Event{Type: events.OnOffConfigTrayItem, Payload: events.Running{Running: true}})
	return true
}

// Stop cancels the running loop. Calling it while stopped is a no-op.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.cur.cancel()
	trace.Logger(context.Background()).Info("translation runtime stopped")
	r.bus.Publish(events.Event{Type: events.OnOffConfigTrayItem, Payload: events.Running{Running: false}})
}

// Update sets the interval; the loop picks it up at its next tick.
func (r *Runtime) Update(d time.Duration) {
	r.interval.Store(int64(max(d, MinInterval)))
}

// SetLanguage sets the translation target for subsequent ticks.
func (r *Runtime) SetLanguage(lang string) { r.language.Store(lang) }

func (r *Runtime) IsRunning() bool { return r.running.Load() }
func (r *Runtime) Interval() time.Duration { return time.Duration(r.interval.Load()) }
func (r *Runtime) Language() string { return r.language.Load() }
func (r *Runtime) LatestText() screen.Text { return r.proc.LatestText() }
func (r *Runtime) Bus() *events.Bus { return r.bus }
func (r *Runtime) Capturer() screencap.Capturer { return r.capturer }

// Session returns the session of the current or last run.
func (r *Runtime) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	s.Language = r.Language()
	return s
}

// Status snapshots the runtime.
func (r *Runtime) Status() Status {
	return Status{
		Running:  r.IsRunning(),
		Interval: r.Interval().Seconds(),
		Language: r.Language(),
		Session:  r.Session(),
		Latest:   r.LatestText().Translated,
	}
}

// Apply pushes new runtime settings. Interval and language are live; a
// changed region or monitor restarts a running loop. A nil region keeps the
// current one. It reports whether a restart happened.
func (r *Runtime) Apply(c config.Runtime) bool {
	r.Update(c.Interval())
	r.SetLanguage(c.Language)
	r.bus.Publish(events.Event{Type: events.RefreshOverlay})

	r.mu.Lock()
	prev, base := r.session, r.base
	next := Session{Monitor: c.Monitor, Region: prev.Region}
	if c.Region != nil {
		next.Region = *c.Region
	}
	if !r.running.Load() {
		r.session = next
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	if prev.Monitor == next.Monitor && prev.Region == next.Region {
		return false
	}
	r.Stop()
	return r.Start(base, next)
}

// Close stops the loop and waits for it to exit.
func (r *Runtime) Close() {
	r.Stop()
	r.mu.Lock()
	cur := r.cur
	r.mu.Unlock()
	if cur != nil {
		<-cur.done
	}
}

func (r *Runtime) loop(ctx context.Context, cur *run, s Session) {
	defer close(cur.done)
	defer cur.cancel()
	if r.onLoop != nil {
		r.onLoop()
	}
	log := trace.Logger(ctx)

	if err := r.preflight(ctx); err != nil {
		log.Error("screen capture not permitted, runtime exiting", "error", err)
		r.exited(events.Failure{Code: apperrors.CodeOf(err).String(), Message: err.Error()})
		return
	}

	timer := time.NewTimer(r.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			// A no-op after Stop, which already cleared the flag.
			r.exited(events.Failure{Code: apperrors.Cancelled.String(), Message: "runtime context done"})
			return
		case <-timer.C:
		}

		target := screen.Target{Monitor: s.Monitor, Region: s.Region, Language: r.Language()}
		out, err := r.proc.Tick(ctx, target)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("tick failed", "code", apperrors.CodeOf(err).String(), "error", err)
		case err == nil:
			log.Debug("tick finished", "outcome", out.String())
		}
		timer.Reset(r.Interval())
	}
}

// exited records that the loop ended on its own.
func (r *Runtime) exited(reason events.Failure) {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.bus.Publish(events.Event{Type: events.RuntimeStopped, Payload: reason})
	r.bus.Publish(events.Event{Type: events.OnOffConfigTrayItem, Payload: events.Running{Running: false}})
}

// preflight checks the screen recording grant on platforms that have one,
// asking for it once when missing.
func (r *Runtime) preflight(ctx context.Context) error {
	pc, ok := r.capturer.(screencap.PermissionChecker)
	if !ok || pc.Check(ctx) {
		return nil
	}
	trace.Logger(ctx).Info("requesting screen recording permission")
	if pc.Request(ctx) {
		return nil
	}
	return apperrors.New(apperrors.PermissionDenied, "screen recording permission not granted")
}
