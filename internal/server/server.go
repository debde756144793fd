package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/transcendia/platform/internal/config"
	apperrors "github.com/transcendia/platform/internal/errors"
	"github.com/transcendia/platform/internal/events"
	"github.com/transcendia/platform/internal/geometry"
	"github.com/transcendia/platform/internal/models"
	"github.com/transcendia/platform/internal/orchestrator"
	"github.com/transcendia/platform/internal/orchestrator/history"
	"github.com/transcendia/platform/internal/syncx"
	"github.com/transcendia/platform/internal/trace"
)

// Runtime is the part of the translation runtime the UI drives.
type Runtime interface {
	Start(ctx context.Context, s orchestrator.Session) bool
	Stop()
	Apply(c config.Runtime) bool
	Status() orchestrator.Status
}

// Downloads is the part of the model provisioner the UI drives.
type Downloads interface {
	Jobs() []models.Job
	Cancel(name string) bool
	CancelAll() int
}

// MonitorLister lists connected monitors.
type MonitorLister interface {
	Monitors(ctx context.Context) ([]geometry.Monitor, error)
}

// Deps wires the server. Downloads and History may be nil.
type Deps struct {
	Runtime   Runtime
	Downloads Downloads
	Monitors  MonitorLister
	Bus       *events.Bus
	History   *history.Store
	Config    config.Runtime
	// Ready reports whether the OCR models are present. The runtime is not
	// started while it returns false. Nil means always ready.
	Ready func() bool
}

// InboundMessage is a message sent by the UI over the websocket.
type InboundMessage struct {
	Type    events.Type `json:"type"`
	File    string      `json:"file,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ErrorMessage is sent to the UI when a request fails.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-RateLimitWindow)
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	rt        Runtime
	downloads Downloads
	monitors  MonitorLister
	bus       *events.Bus
	history   *history.Store
	cfg       *syncx.RWGuard[config.Runtime]
	ready     func() bool

	// base outlives individual requests; runs started over HTTP use it.
	base context.Context
}

// New creates a server. ctx bounds runtime loops started through the API.
func New(ctx context.Context, d Deps) *Server {
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	if d.Ready == nil {
		d.Ready = func() bool { return true }
	}
	return &Server{
		rt:        d.Runtime,
		downloads: d.Downloads,
		monitors:  d.Monitors,
		bus:       d.Bus,
		history:   d.History,
		cfg:       syncx.NewGuard(d.Config),
		ready:     d.Ready,
		base:      ctx,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/monitors", s.handleMonitors)
	mux.HandleFunc("POST /api/runtime/start", s.handleStart)
	mux.HandleFunc("POST /api/runtime/stop", s.handleStop)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("POST /api/models/stop", s.handleStopDownload)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	sub, unsubscribe := s.bus.Subscribe(EventBuffer)
	defer unsubscribe()
	go s.forward(ctx, conn, sub, cancel)

	rl := &rateLimiter{}
	for {
		var msg InboundMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}
		if !rl.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.write(ctx, conn, ErrorMessage{Type: "error", Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			continue
		}

		msgCtx := ctx
		if msg.TraceID != "" {
			msgCtx = trace.WithContext(ctx, trace.NewChild(trace.Context{TraceID: msg.TraceID}))
		}
		s.handleMessage(msgCtx, conn, msg)
	}
}

// forward writes bus events to conn until ctx ends or a write fails.
func (s *Server) forward(ctx context.Context, conn *websocket.Conn, sub <-chan events.Event, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			if err := s.write(ctx, conn, e); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	err := wsjson.Write(ctx, conn, v)
	if err != nil {
		trace.Logger(ctx).Debug("websocket write error", "error", err)
	}
	return err
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg InboundMessage) {
	log := trace.Logger(ctx)
	switch msg.Type {
	case events.StopDownload:
		n := s.stopDownloads(msg.File)
		log.Info("download stop requested", "file", msg.File, "cancelled", n)
	default:
		s.write(ctx, conn, ErrorMessage{Type: "error", Code: string(apperrors.ConfigInvalid), Message: "unknown message type " + strconv.Quote(string(msg.Type))})
	}
}

func (s *Server) stopDownloads(file string) int {
	if s.downloads == nil {
		return 0
	}
	if file == "" {
		return s.downloads.CancelAll()
	}
	if s.downloads.Cancel(file) {
		return 1
	}
	return 0
}

type statusResponse struct {
	Runtime     orchestrator.Status `json:"runtime"`
	Downloads   []models.Job        `json:"downloads,omitempty"`
	Subscribers int                 `json:"subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.rt.Status()
	if len(st.Latest) > TextPreviewLimit {
		st.Latest = st.Latest[:TextPreviewLimit] + "..."
	}
	resp := statusResponse{Runtime: st, Subscribers: s.bus.Subscribers()}
	if s.downloads != nil {
		resp.Downloads = s.downloads.Jobs()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.monitors.Monitors(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

// handleStart starts the runtime with the posted session, or with the
// configured region and monitor when the body is empty.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeError(w, r, apperrors.New(apperrors.Unavailable, "ocr models are not ready"))
		return
	}
	cfg := s.cfg.Get()
	var sess orchestrator.Session
	present, err := decodeBody(w, r, &sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !present {
		if cfg.Region == nil {
			writeError(w, r, apperrors.New(apperrors.ConfigInvalid, "no region selected"))
			return
		}
		sess = orchestrator.Session{Monitor: cfg.Monitor, Region: *cfg.Region, Language: cfg.Language}
	}
	if err := sess.Region.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	started := s.rt.Start(s.base, sess)
	trace.Logger(r.Context()).Info("runtime start requested", "started", started)
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.rt.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Get())
}

// handlePutConfig replaces the runtime settings. Interval and language take
// effect on the next tick; a new region or monitor restarts a running loop.
// The loop only runs once the models are ready, so a restart never precedes them.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	next := s.cfg.Get()
	present, err := decodeBody(w, r, &next)
	if err == nil && !present {
		err = apperrors.New(apperrors.ConfigInvalid, "empty request body")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	s.cfg.Set(next)
	restarted := s.rt.Apply(next)
	trace.Logger(r.Context()).Info("runtime config updated", "interval", next.IntervalSeconds, "language", next.Language, "restarted", restarted)
	writeJSON(w, http.StatusOK, map[string]any{"config": next, "restarted": restarted})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	var jobs []models.Job
	if s.downloads != nil {
		jobs = s.downloads.Jobs()
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleStopDownload(w http.ResponseWriter, r *http.Request) {
	var msg InboundMessage
	if _, err := decodeBody(w, r, &msg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": s.stopDownloads(msg.File)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	var window time.Duration
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, apperrors.Newf(apperrors.ConfigInvalid, "bad seconds %q", v))
			return
		}
		window = time.Duration(n) * time.Second
	}
	entries := s.history.Recent(window)
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// decodeBody decodes a JSON body into v. present is false when the body is
// empty, whatever the request's declared length.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) (present bool, err error) {
	if r.Body == nil {
		return false, nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, apperrors.Wrap(err, apperrors.ConfigInvalid, "decode request body")
	}
	return true, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var httpStatus = map[apperrors.Code]int{
	apperrors.ConfigInvalid:    http.StatusBadRequest,
	apperrors.MonitorNotFound:  http.StatusNotFound,
	apperrors.PermissionDenied: http.StatusForbidden,
	apperrors.CaptureFailed:    http.StatusBadGateway,
	apperrors.Unavailable:      http.StatusServiceUnavailable,
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status, ok := httpStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	trace.Logger(r.Context()).Warn("request failed", "path", r.URL.Path, "code", code.String(), "error", err)
	writeJSON(w, status, ErrorMessage{Type: "error", Code: code.String(), Message: msg})
}
