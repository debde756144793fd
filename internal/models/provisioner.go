package models

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/events"
	"github.com/transcendia/platform/internal/httpx"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 20 * time.Second
	DefaultChunkSize      = 32 << 10

	partSuffix = ".part"
)

// Outcome is how a provisioning round ended.
type Outcome int

const (
	// Ready means every model file is present.
	Ready Outcome = iota
	// Declined means the user cancelled a download.
	Declined
	// Failed means at least one download failed.
	Failed
)

func (o Outcome) String() string {
	return [...]string{"ready", "declined", "failed"}[o]
}

// State is a download job's lifecycle state.
type State string

const (
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Job is a snapshot of one download.
type Job struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Written int64  `json:"written"`
	Total   int64  `json:"total"`
	State   State  `json:"state"`
	Error   string `json:"error,omitempty"`
}

var errDeclined = errors.New("download cancelled by user")

type job struct {
	id      string
	desc    Descriptor
	target  string
	cancel  context.CancelCauseFunc
	written atomic.Int64
	total   atomic.Int64

	mu    sync.Mutex
	state State
	err   error
}

func (j *job) set(s State, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state, j.err = s, err
}

func (j *job) snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Job{
		ID:      j.id,
		Name:    j.desc.Name,
		URL:     j.desc.URL,
		Written: j.written.Load(),
		Total:   j.total.Load(),
		State:   j.state,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// round is one EnsurePresent call's set of downloads.
type round struct {
	jobs    map[string]*job
	done    chan struct{}
	outcome Outcome
	err     error
}

// Provisioner makes sure the model files exist in dir.
type Provisioner struct {
	dir    string
	models []Descriptor
	bus    *events.Bus
	client *http.Client
	chunk  int

	mu  sync.Mutex
	cur *round
}

// Option customises a Provisioner.
type Option func(*Provisioner)

// WithHTTPClient replaces the default HTTPS-only client.
func WithHTTPClient(c *http.Client) Option { return func(p *Provisioner) { p.client = c } }

// WithTimeouts replaces the default connect and total timeouts.
func WithTimeouts(connect, total time.Duration) Option {
	return func(p *Provisioner) { p.client = httpx.New(connect, total) }
}

// WithChunkSize sets the read size between progress events.
func WithChunkSize(n int) Option { return func(p *Provisioner) { p.chunk = n } }

// New creates a provisioner. bus may be nil.
func New(dir string, models []Descriptor, bus *events.Bus, opts ...Option) *Provisioner {
	p := &Provisioner{dir: dir, models: models, bus: bus, chunk: DefaultChunkSize}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		p.client = httpx.New(DefaultConnectTimeout, DefaultTimeout)
	}
	if p.chunk <= 0 {
		p.chunk = DefaultChunkSize
	}
	return p
}

// Dir returns the model directory.
func (p *Provisioner) Dir() string { return p.dir }

// Path returns where the named model lives.
func (p *Provisioner) Path(name string) string { return filepath.Join(p.dir, name) }

// Missing lists the models whose file is absent.
func (p *Provisioner) Missing() []Descriptor {
	var missing []Descriptor
	for _, d := range p.models {
		if _, err := os.Stat(p.Path(d.Name)); err != nil {
			missing = append(missing, d)
		}
	}
	return missing
}

// EnsurePresent returns true when nothing is missing. Otherwise it publishes
// DownloadRequired, starts one download per missing file and returns false;
// use Wait for the result. ctx bounds the downloads, not this call.
func (p *Provisioner) EnsurePresent(ctx context.Context) (bool, error) {
	missing := p.Missing()
	if len(missing) == 0 {
		return true, nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return false, apperrors.Wrap(err, apperrors.DownloadFailed, "create model directory")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil && !closed(p.cur.done) {
		return false, nil
	}

	r := &round{jobs: make(map[string]*job, len(missing)), done: make(chan struct{})}
	names := make([]string, 0, len(missing))
	for _, d := range missing {
		r.jobs[d.Name] = &job{id: newJobID(), desc: d, target: p.Path(d.Name), state: StateRunning}
		names = append(names, d.Name)
	}
	p.cur = r
	p.publish(events.Event{Type: events.DownloadRequired, Payload: events.Files{Files: names}})

	var g errgroup.Group
	for _, j := range r.jobs {
		jctx, cancel := context.WithCancelCause(ctx)
		j.cancel = cancel
		g.Go(func() error {
			defer cancel(nil)
			return p.run(jctx, j)
		})
	}
	go func() {
		_ = g.Wait()
		p.finish(r)
	}()
	return false, nil
}

// Wait blocks until the current round ends.
func (p *Provisioner) Wait(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	r := p.cur
	p.mu.Unlock()
	if r == nil {
		if len(p.Missing()) == 0 {
			return Ready, nil
		}
		return Failed, apperrors.New(apperrors.DownloadFailed, "models missing and no download started")
	}
	select {
	case <-r.done:
		return r.outcome, r.err
	case <-ctx.Done():
		return Failed, ctx.Err()
	}
}

// Cancel stops the download of one model, by file name or URL.
// It reports whether a running download was cancelled.
func (p *Provisioner) Cancel(name string) bool {
	for _, j := range p.running() {
		if j.desc.Name == name || j.desc.URL == name {
			j.cancel(errDeclined)
			return true
		}
	}
	return false
}

// CancelAll stops every running download and returns how many were stopped.
func (p *Provisioner) CancelAll() int {
	n := 0
	for _, j := range p.running() {
		j.cancel(errDeclined)
		n++
	}
	return n
}

// Jobs returns a snapshot of the current round sorted by name.
func (p *Provisioner) Jobs() []Job {
	p.mu.Lock()
	r := p.cur
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func (p *Provisioner) running() []*job {
	p.mu.Lock()
	r := p.cur
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	var js []*job
	for _, j := range r.jobs {
		if j.snapshot().State == StateRunning {
			js = append(js, j)
		}
	}
	return js
}

func (p *Provisioner) run(ctx context.Context, j *job) error {
	log := slog.With("job", j.id, "file", j.desc.Name)
	err := p.download(ctx, j, log)
	switch {
	case err == nil:
		j.set(StateDone, nil)
	case errors.Is(context.Cause(ctx), errDeclined):
		j.set(StateCancelled, errDeclined)
		log.Info("model download cancelled, partial file removed")
	default:
		j.set(StateFailed, err)
		log.Error("model download failed", "error", err)
		p.publish(events.Event{Type: events.DownloadFailed, Payload: events.Failure{
			Code:    apperrors.CodeOf(err).String(),
			Message: err.Error(),
			File:    j.desc.URL,
		}})
	}
	return err
}

// download streams one model into <target>.part, publishing progress after
// every chunk, then renames it into place. The partial file never outlives
// a failed or cancelled download.
func (p *Provisioner) download(ctx context.Context, j *job, log *slog.Logger) error {
	if _, err := httpx.RequireHTTPS(j.desc.URL); err != nil {
		return apperrors.Wrap(err, apperrors.DownloadFailed, "model source")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.desc.URL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.DownloadFailed, "build request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.DownloadFailed, "request model")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.DownloadFailed, "model server returned %s", resp.Status)
	}
	total := resp.ContentLength
	if total < 0 {
		return apperrors.Newf(apperrors.ContentLengthUnknown, "%s did not report its size", j.desc.URL)
	}
	j.total.Store(total)
	log.Info("downloading model", "size", humanize.Bytes(uint64(total)))

	part := j.target + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return apperrors.Wrap(err, apperrors.DownloadFailed, "create partial file")
	}
	discard := func() {
		f.Close()
		os.Remove(part)
	}

	h := xxh3.New()
	buf := make([]byte, p.chunk)
	var written, progress int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				discard()
				return apperrors.Wrap(werr, apperrors.DownloadFailed, "write partial file")
			}
			h.Write(buf[:n])
			written += int64(n)
			progress = min(progress+int64(n), total)
			j.written.Store(progress)
			p.publish(events.Event{Type: events.DownloadProgress, Payload: events.Progress{
				File:      j.desc.URL,
				Progress:  progress,
				TotalSize: total,
			}})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			discard()
			return apperrors.Wrap(rerr, apperrors.DownloadFailed, "download interrupted")
		}
		if ctx.Err() != nil {
			discard()
			return apperrors.Wrap(context.Cause(ctx), apperrors.DownloadCancelled, "download stopped")
		}
	}

	if err := f.Sync(); err != nil {
		discard()
		return apperrors.Wrap(err, apperrors.DownloadFailed, "flush partial file")
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return apperrors.Wrap(err, apperrors.DownloadFailed, "close partial file")
	}
	if err := os.Rename(part, j.target); err != nil {
		os.Remove(part)
		return apperrors.Wrap(err, apperrors.DownloadFailed, "move model into place")
	}

	side := Sidecar{URL: j.desc.URL, SizeBytes: written, XXH3: formatSum(h.Sum64()), DownloadedAt: time.Now().UTC()}
	if err := writeSidecar(j.target, side); err != nil {
		log.Warn("failed to write model sidecar", "error", err)
	}
	log.Info("model downloaded", "size", humanize.Bytes(uint64(written)), "xxh3", side.XXH3)
	return nil
}

func (p *Provisioner) finish(r *round) {
	var errs []error
	declined := false
	for _, j := range r.jobs {
		j.mu.Lock()
		switch j.state {
		case StateCancelled:
			declined = true
		case StateFailed:
			errs = append(errs, j.err)
		}
		j.mu.Unlock()
	}

	switch {
	case declined:
		r.outcome = Declined
	case len(errs) > 0:
		r.outcome, r.err = Failed, errors.Join(errs...)
	default:
		r.outcome = Ready
		p.publish(events.Event{Type: events.DownloadFinished})
	}
	slog.Info("model provisioning finished", "outcome", r.outcome.String(), "files", len(r.jobs))
	close(r.done)
}

func (p *Provisioner) publish(e events.Event) {
	if p.bus != nil {
		p.bus.Publish(e)
	}
}

func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
