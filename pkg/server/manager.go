package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"relaydesk/relay/pkg/proxy"
	"relaydesk/relay/pkg/proxy/middleware"
	"relaydesk/relay/pkg/proxy/types"
)

// Lifecycle messages reported in successful results.
const (
	MsgStarted           = "Proxy server started on port %d"
	MsgStopped           = "Proxy server stopped"
	MsgNotRunning        = "Proxy server was not running"
	MsgUpdatedNotRunning = "Configuration updated (server not running)"
)

// DefaultShutdownTimeout is used when Options.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 5 * time.Second

// Observer is notified of every completed lifecycle transition. It is
// called with the manager's transition lock held and must not block or
// call back into the manager.
type Observer interface {
	ObserveTransition(t types.Transition)
}

// Metrics receives lifecycle measurements.
type Metrics interface {
	RecordTransition(operation string, success bool, duration time.Duration)
	ObserveState(running bool, cfg *types.ProxyConfig)
}

// Options configure every proxy instance a Manager creates. The zero value
// is usable.
type Options struct {
	// BindAddress is the interface to listen on. Empty means all interfaces.
	BindAddress string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// ShutdownTimeout is how long in-flight requests may drain when an
	// instance is stopped before their connections are closed.
	ShutdownTimeout time.Duration

	// Forwarder is passed to every instance's forwarder.
	Forwarder proxy.Options

	// CORS is applied to proxied responses. Nil uses the permissive
	// middleware.DefaultCORSConfig.
	CORS *middleware.CORSConfig

	Metrics   Metrics
	Observers []Observer
	Tracer    proxy.SpanStarter
	Logger    *slog.Logger
}

// Manager owns at most one running proxy instance and serializes every
// transition between the stopped and running states. It is safe for
// concurrent use.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	current *instance
}

// instance is one bound listener serving one ProxyConfig.
type instance struct {
	cfg       types.ProxyConfig
	listener  net.Listener
	server    *http.Server
	forwarder *proxy.Forwarder
	done      chan struct{}
}

// NewManager creates a stopped Manager.
func NewManager(opts Options) *Manager {
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Forwarder.Logger == nil {
		opts.Forwarder.Logger = base
	}
	if opts.Forwarder.Tracer == nil {
		opts.Forwarder.Tracer = opts.Tracer
	}
	opts.Logger = base

	return &Manager{
		opts:   opts,
		logger: base.With("component", "server.manager"),
	}
}

// Start binds a new instance for cfg. A running instance is stopped first,
// even when cfg is unchanged. An invalid cfg or a bind failure leaves the
// manager stopped and returns a failed result.
func (m *Manager) Start(cfg types.ProxyConfig) types.OperationResult {
	return m.transition(types.OperationStart, &cfg, func() (types.OperationResult, error) {
		if err := cfg.Validate(); err != nil {
			return types.Failed(err), nil
		}
		var stopErr error
		if m.current != nil {
			stopErr = m.release(context.Background())
		}
		return m.start(cfg), stopErr
	})
}

// Stop stops the running instance. Stopping a stopped manager succeeds.
func (m *Manager) Stop() types.OperationResult {
	return m.transition(types.OperationStop, nil, func() (types.OperationResult, error) {
		return m.stop(context.Background())
	})
}

// Reconfigure replaces the running instance with one for cfg. When the
// manager is stopped nothing is bound and cfg is not retained. An invalid
// cfg is rejected before the running instance is touched.
func (m *Manager) Reconfigure(cfg types.ProxyConfig) types.OperationResult {
	return m.transition(types.OperationReconfigure, &cfg, func() (types.OperationResult, error) {
		if err := cfg.Validate(); err != nil {
			return types.Failed(err), nil
		}
		if m.current == nil {
			return types.Succeeded(MsgUpdatedNotRunning), nil
		}
		stopErr := m.release(context.Background())
		return m.start(cfg), stopErr
	})
}

// Status reports the current state. It blocks only while a transition is
// in progress.
func (m *Manager) Status() types.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return types.Status{}
	}
	cfg := m.current.cfg
	return types.Status{IsRunning: true, Config: &cfg}
}

// Addr returns the address of the running listener, or nil when stopped.
func (m *Manager) Addr() net.Addr {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil
	}
	return m.current.listener.Addr()
}

// Shutdown stops the running instance, letting in-flight requests drain
// until ctx is done or the shutdown timeout elapses.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.transition(types.OperationStop, nil, func() (types.OperationResult, error) {
		var res types.OperationResult
		res, err = m.stop(ctx)
		return res, err
	})
	return err
}

// CheckUpstream dials the running instance's target. It returns nil when
// the manager is stopped.
func (m *Manager) CheckUpstream(ctx context.Context) error {
	m.mu.RLock()
	var cfg *types.ProxyConfig
	if m.current != nil {
		c := m.current.cfg
		cfg = &c
	}
	m.mu.RUnlock()

	if cfg == nil {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.TargetAddr())
	if err != nil {
		return fmt.Errorf("upstream %s unreachable: %w", cfg.TargetURL(), err)
	}
	return conn.Close()
}

// transition runs fn under the transition lock and reports its outcome.
// fn may return a non-nil error for a problem that did not fail the
// operation, such as a forced close after the drain timeout.
func (m *Manager) transition(op types.Operation, requested *types.ProxyConfig, fn func() (types.OperationResult, error)) types.OperationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	begin := time.Now()
	res, warnErr := fn()
	elapsed := time.Since(begin)

	if warnErr != nil {
		m.logger.Warn("previous proxy instance did not drain cleanly",
			"operation", op,
			"error", warnErr,
		)
	}
	m.report(types.Transition{
		Operation: op,
		Result:    res,
		Requested: requested,
		Time:      begin,
		Duration:  elapsed,
	})
	return res
}

func (m *Manager) report(t types.Transition) {
	if t.Result.Success {
		m.logger.Info("lifecycle transition completed",
			"operation", t.Operation,
			"message", t.Result.Message,
			"running", m.current != nil,
			"duration", t.Duration,
		)
	} else {
		m.logger.Warn("lifecycle transition failed",
			"operation", t.Operation,
			"error", t.Result.Error,
			"running", m.current != nil,
			"duration", t.Duration,
		)
	}

	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordTransition(string(t.Operation), t.Result.Success, t.Duration)
		if m.current != nil {
			cfg := m.current.cfg
			m.opts.Metrics.ObserveState(true, &cfg)
		} else {
			m.opts.Metrics.ObserveState(false, nil)
		}
	}

	for _, o := range m.opts.Observers {
		o.ObserveTransition(t)
	}
}

// start binds and serves a new instance. The caller holds the lock and has
// already released any previous instance.
func (m *Manager) start(cfg types.ProxyConfig) types.OperationResult {
	inst, err := m.launch(cfg)
	if err != nil {
		return types.Failed(err)
	}
	m.current = inst
	return types.SucceededWith(fmt.Sprintf(MsgStarted, cfg.ProxyPort), cfg)
}

func (m *Manager) stop(ctx context.Context) (types.OperationResult, error) {
	if m.current == nil {
		return types.Succeeded(MsgNotRunning), nil
	}
	err := m.release(ctx)
	return types.Succeeded(MsgStopped), err
}

// release stops the current instance and clears it. The listener is
// closed by the time release returns, whatever the error.
func (m *Manager) release(ctx context.Context) error {
	inst := m.current
	m.current = nil
	return inst.stop(ctx, m.opts.ShutdownTimeout)
}

func (m *Manager) launch(cfg types.ProxyConfig) (*instance, error) {
	fwd, err := proxy.NewForwarder(cfg, m.opts.Forwarder)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(m.opts.BindAddress, strconv.Itoa(cfg.ProxyPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fwd.CloseIdleConnections()
		return nil, err
	}

	inst := &instance{
		cfg:       cfg,
		listener:  ln,
		forwarder: fwd,
		done:      make(chan struct{}),
	}
	inst.server = &http.Server{
		Handler:           m.routes(cfg, fwd),
		ReadHeaderTimeout: m.opts.ReadHeaderTimeout,
		IdleTimeout:       m.opts.IdleTimeout,
		MaxHeaderBytes:    m.opts.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(m.opts.Logger.Handler(), slog.LevelWarn),
	}

	logger := m.logger.With("address", ln.Addr().String(), "target", cfg.TargetURL())
	go inst.serve(logger)

	return inst, nil
}

func (i *instance) serve(logger *slog.Logger) {
	defer close(i.done)

	logger.Info("proxy listener accepting connections")
	if err := i.server.Serve(i.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("proxy listener failed", "error", err)
	}
}

// stop closes the listener, gives in-flight requests up to timeout to
// finish, then force-closes what remains and drops idle upstream
// connections.
func (i *instance) stop(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := i.server.Shutdown(ctx)
	if err != nil {
		i.server.Close()
		err = fmt.Errorf("server shutdown error: %w", err)
	}
	<-i.done
	i.forwarder.CloseIdleConnections()
	return err
}
