// Package server exposes report ingestion over HTTP.
//
// Routes:
//
//	POST /v1/reports/{format}   ingest one report ("auto" detects the format)
//	GET  /v1/formats            list supported formats
//	GET  /v1/pool               worker pool statistics (async mode)
//	GET  /healthz               liveness
//	GET  /readyz                readiness and dependency checks
//	GET  /metrics               Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/exploopio/scanimport/pkg/compress"
	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/health"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/pipeline"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/scanners"
)

// FormatAuto asks the server to detect the report format.
const FormatAuto = "auto"

// Config configures a Server.
type Config struct {
	// MaxReportSize caps the raw and decompressed size of one report.
	// Default: compress.DefaultMaxDecodedSize
	MaxReportSize int64

	// Pool, when set, enables ?async=true submissions.
	Pool *pipeline.Pool

	// Health serves /healthz and /readyz. Default: a handler with no checks.
	Health *health.Handler

	Logger  core.Logger
	Metrics metrics.Collector
}

// Server is the ingest HTTP server.
type Server struct {
	r         *chi.Mux
	processor pipeline.Processor
	pool      *pipeline.Pool
	health    *health.Handler
	maxSize   int64
	logger    core.Logger
	metrics   metrics.Collector
}

// New creates a server that processes reports with processor.
func New(processor pipeline.Processor, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	maxSize := cfg.MaxReportSize
	if maxSize <= 0 {
		maxSize = compress.DefaultMaxDecodedSize
	}
	h := cfg.Health
	if h == nil {
		h = health.NewHandler()
		h.SetReady(true)
	}

	s := &Server{
		r:         chi.NewRouter(),
		processor: processor,
		pool:      cfg.Pool,
		health:    h,
		maxSize:   maxSize,
		logger:    core.LoggerOrNop(cfg.Logger),
		metrics:   metrics.OrNop(cfg.Metrics),
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(s.instrument)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Method(http.MethodGet, "/healthz", s.health.LivenessHandler())
	s.r.Method(http.MethodGet, "/readyz", s.health.ReadinessHandler())
	s.r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.r.Route("/v1", func(r chi.Router) {
		r.Get("/formats", s.listFormats)
		r.Get("/pool", s.poolStats)
		r.Post("/reports/{format}", s.ingest)
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.r }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// acceptedResponse is the body of an async submission.
type acceptedResponse struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Format ris.Format `json:"format,omitempty"`
	Size   int        `json:"size"`
}

func (s *Server) listFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"formats": scanners.Formats()})
}

func (s *Server) poolStats(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "async processing disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.pool.GetStats())
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	raw, status, err := s.readReport(r)
	if err != nil {
		s.logger.Warn("reject report: %v", err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kindOf(err)})
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if s.pool == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "async processing disabled"})
			return
		}
		id, err := s.pool.Submit(raw)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, acceptedResponse{ID: id, Name: raw.Name, Format: raw.Format, Size: len(raw.Data)})
		return
	}

	result, err := s.processor.Process(r.Context(), raw)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), Kind: kindOf(err)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readReport reads and decompresses the request body. The returned status
// applies when err is non-nil.
func (s *Server) readReport(r *http.Request) (ris.RawReport, int, error) {
	var raw ris.RawReport

	tag := chi.URLParam(r, "format")
	if tag != FormatAuto {
		format, ok := ris.ParseFormat(tag)
		if !ok {
			return raw, http.StatusBadRequest, ierrors.E(ierrors.KindUnsupportedFormat, "server.ingest", fmt.Sprintf("unsupported format %q", tag))
		}
		raw.Format = format
	}

	raw.Name = r.URL.Query().Get("name")
	if raw.Name == "" {
		raw.Name = r.Header.Get("X-Report-Name")
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, s.maxSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return raw, http.StatusRequestEntityTooLarge, fmt.Errorf("report exceeds %d bytes", s.maxSize)
		}
		return raw, http.StatusBadRequest, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return raw, http.StatusBadRequest, ierrors.E(ierrors.KindInvalidInput, "server.ingest", "empty report")
	}

	alg, err := compress.FromContentEncoding(r.Header.Get("Content-Encoding"))
	if err != nil {
		return raw, http.StatusUnsupportedMediaType, err
	}
	if alg == compress.AlgorithmNone {
		alg = compress.Detect(body)
	}
	c, err := compress.For(alg)
	if err != nil {
		return raw, http.StatusUnsupportedMediaType, err
	}
	data, err := c.Decompress(body, s.maxSize)
	if err != nil {
		if errors.Is(err, compress.ErrTooLarge) {
			return raw, http.StatusRequestEntityTooLarge, err
		}
		return raw, http.StatusBadRequest, err
	}

	raw.Data = data
	return raw, 0, nil
}

// statusFor maps a processing error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch ierrors.GetKind(err) {
	case ierrors.KindMalformed:
		return http.StatusUnprocessableEntity
	case ierrors.KindUnsupportedFormat, ierrors.KindInvalidInput:
		return http.StatusBadRequest
	case ierrors.KindInventory:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	if k := ierrors.GetKind(err); k != ierrors.KindUnknown {
		return k.String()
	}
	return ""
}

// instrument records request metrics and logs each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.CounterInc(metrics.HTTPRequestsTotal.Name,
			"method", r.Method, "route", route, "status", strconv.Itoa(ww.Status()))
		s.metrics.HistogramObserve(metrics.HTTPRequestDuration.Name, elapsed.Seconds(),
			"method", r.Method, "route", route)
		s.logger.Debug("%s %s -> %d (%d bytes, %v) [%s]",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), elapsed, middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
