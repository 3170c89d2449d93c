// Package server exposes the analyst, the specialist pipeline and graph
// enrichment over HTTP. Streaming endpoints emit one server-sent event per
// step record (`data: <json>\n\n`) and carry the run trace id in the
// X-Trace-Id response header.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/secmesh/enrich"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/runner"
	"github.com/hupe1980/secmesh/store"
)

// HeaderTraceID carries caller and run trace ids.
const HeaderTraceID = "X-Trace-Id"

const maxBodyBytes = 1 << 20

// Service is what the HTTP surface drives. *secmesh.SecMesh implements it.
type Service interface {
	Stream(ctx context.Context, req runner.Request) *runner.Stream
	StreamPipeline(ctx context.Context, req runner.Request) *runner.Stream
	Ask(ctx context.Context, req runner.Request) (*runner.Answer, error)
	Enrich(ctx context.Context) (*enrich.Report, error)
	Ping(ctx context.Context) error
}

// Options configures the Server.
type Options struct {
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string
	// RateLimit is the per-client request rate per second; zero disables limiting.
	RateLimit float64
	// RateBurst is the per-client bucket size.
	RateBurst int
	// ShutdownTimeout bounds graceful shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server is the HTTP surface.
type Server struct {
	svc     Service
	opts    Options
	limiter *clientLimiter
	handler http.Handler
	logger  logging.Logger
}

// New creates a Server around svc.
func New(svc Service, optFns ...func(o *Options)) *Server {
	opts := Options{
		CORSOrigins:     []string{"http://localhost:3000"},
		RateBurst:       10,
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		svc:    svc,
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
	}

	if opts.RateLimit > 0 {
		s.limiter = newClientLimiter(opts.RateLimit, opts.RateBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/stream", s.handleStream(svc.Stream))
	mux.HandleFunc("POST /chat/multi-agent/stream", s.handleStream(svc.StreamPipeline))
	mux.HandleFunc("POST /enrich-graph", s.handleEnrich)
	mux.HandleFunc("GET /enrich-graph", s.handleEnrich)

	s.handler = s.logRequests(s.cors(s.rateLimit(mux)))

	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server.stopped")
	return nil
}

type chatRequest struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
	TraceID  string `json:"trace_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from secmesh!"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	answer, err := s.svc.Ask(r.Context(), req)
	if err != nil {
		s.logger.Error("server.chat.failed", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set(HeaderTraceID, answer.TraceID)
	writeJSON(w, http.StatusOK, chatResponse{Response: answer.Text, TraceID: answer.TraceID})
}

func (s *Server) handleStream(start func(context.Context, runner.Request) *runner.Stream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.decode(w, r)
		if !ok {
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
			return
		}

		stream := start(r.Context(), req)

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set(HeaderTraceID, stream.TraceID())
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for rec := range stream.Records() {
			data, err := json.Marshal(rec)
			if err != nil {
				s.logger.Error("server.stream.encode_failed", "trace_id", stream.TraceID(), "error", err.Error())
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				// Client went away; leaving the loop stops the run.
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Enrich(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNoStore) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// decode reads a chat request. A trace id in the body wins over the header.
func (s *Server) decode(w http.ResponseWriter, r *http.Request) (runner.Request, bool) {
	var body chatRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return runner.Request{}, false
	}

	if strings.TrimSpace(body.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Message is required"})
		return runner.Request{}, false
	}

	traceID := body.TraceID
	if traceID == "" {
		traceID = r.Header.Get(HeaderTraceID)
	}

	return runner.Request{Message: body.Message, TraceID: traceID}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
