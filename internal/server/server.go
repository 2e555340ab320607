// Package server exposes snapshots, the upcoming-matches window and quota
// status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fixturegate/fixturegate/internal/calendar"
	"github.com/fixturegate/fixturegate/internal/gate"
	"github.com/fixturegate/fixturegate/internal/metrics"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/store"
)

// Service is the read side of the snapshot manager.
type Service interface {
	Get(ctx context.Context, key store.Key, opts snapshot.Options) (snapshot.Snapshot, error)
	Window(ctx context.Context, hours int) (snapshot.WindowResult, error)
	QuotaStatus(ctx context.Context) (quota.Status, error)
}

// Pinger checks the backing store.
type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

type Config struct {
	Addr     string
	Service  Service
	Store    Pinger
	Calendar *calendar.Calendar
	Metrics  *metrics.Metrics
	Logger   *log.Logger
	// ShutdownTimeout bounds graceful shutdown. Zero means 10s.
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg    Config
	logger *log.Logger
	http   *http.Server
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/quota", s.handleQuota)
	mux.HandleFunc("GET /api/snapshots/{kind}/{date}", s.handleSnapshot)
	mux.HandleFunc("GET /api/matches/window", s.handleWindow)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Serve listens on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds Addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string        `json:"status"`
	Store  string        `json:"store"`
	Error  string        `json:"error,omitempty"`
	Quota  *quota.Status `json:"api_budget,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{Status: "ok"}
	if s.cfg.Store != nil {
		resp.Store = s.cfg.Store.Name()
		if err := s.cfg.Store.Ping(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	st, err := s.cfg.Service.QuotaStatus(r.Context())
	if err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Quota = &st
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Service.QuotaStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, string(gate.ReasonStoreUnavailable), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err)
		return
	}
	date, err := s.cfg.Calendar.Resolve(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_key", err)
		return
	}
	key := store.Key{Kind: kind, Date: date}
	if v := r.URL.Query().Get("league"); v != "" {
		league, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_key", errors.New("league must be an integer"))
			return
		}
		key.League = league
	}
	var opts snapshot.Options
	if v := r.URL.Query().Get("window"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", errors.New("window must be a number of hours"))
			return
		}
		opts.Window = hours
	}

	snap, err := s.cfg.Service.Get(r.Context(), key, opts)
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	w.Header().Set("X-Snapshot-Source", string(snap.Source))
	w.Header().Set("X-Snapshot-State", string(snap.State))
	writeJSON(w, http.StatusOK, snap.Document())
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", errors.New("hours must be an integer"))
			return
		}
		hours = h
	}
	res, err := s.cfg.Service.Window(r.Context(), hours)
	if err != nil {
		s.writeUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeUnavailable(w http.ResponseWriter, err error) {
	var ue *snapshot.UnavailableError
	if !errors.As(err, &ue) {
		s.logger.Error("serving snapshot", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	status := http.StatusNotFound
	switch ue.Reason {
	case "invalid_key", string(gate.ReasonScopeViolation):
		status = http.StatusBadRequest
	case string(gate.ReasonStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, ue.Reason, err)
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func writeError(w http.ResponseWriter, status int, reason string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration_ms", time.Since(start).Milliseconds())
	})
}
