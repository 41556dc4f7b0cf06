package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"relaydesk/relay/pkg/proxy/types"
	"relaydesk/relay/pkg/telemetry/logging"
	"relaydesk/relay/pkg/telemetry/tracing"
)

// Metrics receives per-request forwarding measurements.
type Metrics interface {
	// RecordForward records one completed request and the status returned
	// to the client.
	RecordForward(method string, status int, duration time.Duration)

	// RecordUpstreamError records a request that failed at the upstream.
	RecordUpstreamError(method string)
}

// SpanStarter starts tracing spans. Both trace.Tracer and *tracing.Tracer
// satisfy it.
type SpanStarter interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// Options tune a Forwarder. The zero value is usable.
type Options struct {
	// MaxBodyBytes caps structured request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// UpstreamTimeout bounds the wait for upstream response headers.
	// Zero means no timeout.
	UpstreamTimeout time.Duration

	// XForwarded adds X-Forwarded-For, X-Forwarded-Host and
	// X-Forwarded-Proto to outbound requests.
	XForwarded bool

	Hooks   Hooks
	Metrics Metrics
	Tracer  SpanStarter

	// Transport overrides the upstream transport. When nil the forwarder
	// owns a clone of http.DefaultTransport.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Forwarder relays every request it receives to a single upstream. The
// Host header is rewritten to the upstream address and structured bodies
// are re-encoded as JSON with an exact Content-Length.
//
// A Forwarder is bound to one ProxyConfig for its whole life.
type Forwarder struct {
	cfg       types.ProxyConfig
	target    *url.URL
	opts      Options
	transport http.RoundTripper
	proxy     *httputil.ReverseProxy
	logger    *slog.Logger
	tracer    SpanStarter
}

// NewForwarder creates a Forwarder for cfg. The config must already be valid.
func NewForwarder(cfg types.ProxyConfig, opts Options) (*Forwarder, error) {
	target, err := url.Parse(cfg.TargetURL())
	if err != nil {
		return nil, &types.ConfigError{Problems: []string{"invalid target: " + err.Error()}}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy.forwarder", "target", cfg.TargetURL())

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("relay")
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = opts.UpstreamTimeout
		transport = t
	}

	f := &Forwarder{
		cfg:       cfg,
		target:    target,
		opts:      opts,
		transport: transport,
		logger:    logger,
		tracer:    tracer,
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite:        f.rewrite,
		Transport:      transport,
		ModifyResponse: f.modifyResponse,
		ErrorHandler:   f.handleError,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return f, nil
}

// Config returns the configuration the forwarder is bound to.
func (f *Forwarder) Config() types.ProxyConfig {
	return f.cfg
}

// ServeHTTP implements http.Handler.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx := tracing.Extract(r.Context(), r.Header)
	ctx, span := f.tracer.Start(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.RequestURI()),
			attribute.String("proxy.upstream", f.cfg.TargetURL()),
		),
	)
	defer span.End()
	r = r.WithContext(ctx)

	sw := &statusWriter{ResponseWriter: w}

	body, err := ParseBody(r, f.opts.MaxBodyBytes)
	if err != nil {
		f.logger.Warn("rejected request body",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", logging.GetRequestID(ctx),
			"error", err,
		)
		span.SetStatus(codes.Error, err.Error())
		WriteErrorEnvelope(sw, HandleError(err, f.cfg.TargetURL()))
		f.finish(r, sw, span, start)
		return
	}
	if body != nil {
		if err := body.Reframe(r); err != nil {
			span.SetStatus(codes.Error, err.Error())
			WriteErrorEnvelope(sw, types.NewErrorEnvelope(types.ErrorInternal, err.Error(), f.cfg.TargetURL()))
			f.finish(r, sw, span, start)
			return
		}
		span.SetAttributes(attribute.String("proxy.body_kind", body.Kind.String()))
	}

	f.proxy.ServeHTTP(sw, r)
	f.finish(r, sw, span, start)
}

// CloseIdleConnections closes idle upstream connections held by the
// forwarder's transport.
func (f *Forwarder) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if t, ok := f.transport.(closeIdler); ok {
		t.CloseIdleConnections()
	}
}

func (f *Forwarder) finish(r *http.Request, sw *statusWriter, span trace.Span, start time.Time) {
	status := sw.Status()
	span.SetAttributes(attribute.Int("http.status_code", status))
	if f.opts.Metrics != nil {
		f.opts.Metrics.RecordForward(r.Method, status, time.Since(start))
	}
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.target)
	if f.opts.XForwarded {
		pr.SetXForwarded()
	}
	tracing.Inject(pr.Out.Context(), pr.Out.Header)

	f.logger.Info("forwarding request",
		"method", pr.In.Method,
		"path", pr.In.URL.Path,
		"upstream_url", pr.Out.URL.String(),
		"request_id", logging.GetRequestID(pr.In.Context()),
	)

	if f.opts.Hooks.BeforeSend != nil {
		f.opts.Hooks.BeforeSend(pr.Out)
	}
}

func (f *Forwarder) modifyResponse(resp *http.Response) error {
	f.logger.Info("upstream responded",
		"method", resp.Request.Method,
		"path", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"request_id", logging.GetRequestID(resp.Request.Context()),
	)

	if f.opts.Hooks.AfterReceive != nil {
		return f.opts.Hooks.AfterReceive(resp)
	}
	return nil
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.Error("proxy error",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", logging.GetRequestID(r.Context()),
		"error", err,
	)

	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if f.opts.Metrics != nil {
		f.opts.Metrics.RecordUpstreamError(r.Method)
	}
	if f.opts.Hooks.OnError != nil {
		f.opts.Hooks.OnError(r, err)
	}

	WriteErrorEnvelope(w, types.NewProxyError(err.Error(), f.cfg.TargetURL()))
}

// statusWriter records the status code written to the client.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 && code >= 200 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the status sent to the client, or 200 if nothing was written.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
