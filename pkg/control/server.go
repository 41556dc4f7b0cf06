package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"relaydesk/relay/pkg/history"
	"relaydesk/relay/pkg/proxy"
	"relaydesk/relay/pkg/proxy/middleware"
	"relaydesk/relay/pkg/proxy/types"
	"relaydesk/relay/pkg/telemetry/health"
)

// maxRequestBytes caps control request bodies.
const maxRequestBytes = 1 << 20

// Lifecycle is the set of proxy lifecycle operations exposed over HTTP.
// *server.Manager implements it.
type Lifecycle interface {
	Start(cfg types.ProxyConfig) types.OperationResult
	Stop() types.OperationResult
	Reconfigure(cfg types.ProxyConfig) types.OperationResult
	Status() types.Status
}

// ConfigStore holds the saved proxy route. *config.Store implements it.
type ConfigStore interface {
	Proxy() types.ProxyConfig
	SetProxy(cfg types.ProxyConfig) error
}

// Options configure a control Server.
type Options struct {
	// Address is the TCP address to listen on, e.g. "127.0.0.1:7070".
	Address string

	Lifecycle Lifecycle
	Config    ConfigStore

	// History serves /v1/events. Nil disables the endpoint.
	History history.Storage

	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler

	// Health serves /health and /ready. Nil uses a checker with no checks.
	Health  *health.Checker
	Version health.VersionInfo

	Logger *slog.Logger
}

// Server is the local HTTP control API for a relay process.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// EventsResponse is the body of GET /v1/events.
type EventsResponse struct {
	Events []*history.Event `json:"events"`
	Total  int64            `json:"total"`
}

// ErrorResponse is the body of control API errors that are not lifecycle
// results.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a control server. It does not listen until Start.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger.With("component", "control"),
	}
}

// Handler returns the control API handler with its middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/proxy/start", s.handleStart)
	mux.HandleFunc("POST /v1/proxy/stop", s.handleStop)
	mux.HandleFunc("POST /v1/proxy/reconfigure", s.handleReconfigure)
	mux.HandleFunc("GET /v1/config", s.handleGetConfig)
	mux.HandleFunc("PUT /v1/config", s.handlePutConfig)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	health.Register(mux, s.opts.Health, s.opts.Version)

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	return handler
}

// Start binds the control address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("control server already started")
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	srv, done := s.server, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control server failed", "error", err)
		}
	}()

	s.logger.Info("control API listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the control server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		srv.Close()
	}
	<-done
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	proxy.WriteJSON(w, http.StatusOK, s.opts.Lifecycle.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg, provided, err := decodeProxyConfig(r)
	if err != nil {
		writeResult(w, http.StatusBadRequest, types.Failed(err))
		return
	}
	if !provided {
		cfg = s.opts.Config.Proxy()
	}
	if err := cfg.Validate(); err != nil {
		writeResult(w, http.StatusBadRequest, types.Failed(err))
		return
	}
	writeResult(w, 0, s.opts.Lifecycle.Start(cfg))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeResult(w, 0, s.opts.Lifecycle.Stop())
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.requireProxyConfig(w, r)
	if !ok {
		return
	}
	writeResult(w, 0, s.opts.Lifecycle.Reconfigure(cfg))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	proxy.WriteJSON(w, http.StatusOK, s.opts.Config.Proxy())
}

// handlePutConfig saves the route, then restarts the proxy on it if it is
// running.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.requireProxyConfig(w, r)
	if !ok {
		return
	}
	if err := s.opts.Config.SetProxy(cfg); err != nil {
		s.logger.Error("failed to save proxy configuration", "error", err)
		writeResult(w, http.StatusInternalServerError, types.Failed(err))
		return
	}
	writeResult(w, 0, s.opts.Lifecycle.Reconfigure(cfg))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		proxy.WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "history is disabled"})
		return
	}

	q, err := parseEventsQuery(r)
	if err != nil {
		proxy.WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		proxy.WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	events, err := s.opts.History.Query(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to query history", "error", err)
		proxy.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	total, err := s.opts.History.Count(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to count history", "error", err)
		proxy.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	proxy.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Total: total})
}

func (s *Server) requireProxyConfig(w http.ResponseWriter, r *http.Request) (types.ProxyConfig, bool) {
	cfg, provided, err := decodeProxyConfig(r)
	if err == nil && !provided {
		err = errors.New("request body with a proxy configuration is required")
	}
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		writeResult(w, http.StatusBadRequest, types.Failed(err))
		return types.ProxyConfig{}, false
	}
	return cfg, true
}

// decodeProxyConfig reads an optional ProxyConfig body. provided is false
// for an empty body.
func decodeProxyConfig(r *http.Request) (cfg types.ProxyConfig, provided bool, err error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return cfg, false, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(data) > maxRequestBytes {
		return cfg, false, errors.New("request body too large")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, false, fmt.Errorf("invalid proxy configuration body: %w", err)
	}
	return cfg, true, nil
}

func parseEventsQuery(r *http.Request) (*history.Query, error) {
	values := r.URL.Query()
	q := &history.Query{SortOrder: history.SortDesc}

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		q.Limit = n
	}
	if v := values.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q", v)
		}
		q.Offset = n
	}
	if v := values.Get("operation"); v != "" {
		q.Operation = types.Operation(v)
	}
	if v := values.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid success %q", v)
		}
		q.Success = &b
	}
	if v := values.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid since %q: want RFC 3339", v)
		}
		q.StartTime = &t
	}
	if v := values.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid until %q: want RFC 3339", v)
		}
		q.EndTime = &t
	}
	return q, nil
}

// writeResult writes res. A zero status means 200 for success and 500 for
// failure.
func writeResult(w http.ResponseWriter, status int, res types.OperationResult) {
	if status == 0 {
		status = http.StatusOK
		if !res.Success {
			status = http.StatusInternalServerError
		}
	}
	proxy.WriteJSON(w, status, res)
}
