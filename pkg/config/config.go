package config

import (
	"time"

	"relaydesk/relay/pkg/proxy/types"
)

// Config is the root configuration structure for relay. It is loaded from a
// YAML file and may be rewritten by the control API when the saved proxy
// route changes.
type Config struct {
	// Proxy is the saved route (target host/port, listen port) and whether
	// it is started with the process.
	Proxy ProxySettings `yaml:"proxy"`

	// Server contains listener settings shared by every proxy instance.
	Server ServerConfig `yaml:"server"`

	// Forwarding tunes how requests are relayed to the upstream.
	Forwarding ForwardingConfig `yaml:"forwarding"`

	// CORS contains Cross-Origin Resource Sharing configuration applied to
	// proxied responses.
	CORS CORSConfig `yaml:"cors"`

	// Control configures the local HTTP control API.
	Control ControlConfig `yaml:"control"`

	// Watch reloads the file on change and reconfigures a running proxy.
	Watch bool `yaml:"watch"`

	// History configures lifecycle event storage.
	History HistoryConfig `yaml:"history"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxySettings is the persisted proxy route.
type ProxySettings struct {
	types.ProxyConfig `yaml:",inline"`

	// Autostart starts the proxy with the saved route when `relay run`
	// begins.
	// Default: true
	Autostart bool `yaml:"autostart"`
}

// ServerConfig contains listener settings for proxy instances.
type ServerConfig struct {
	// BindAddress is the interface the proxy listens on. Empty means all
	// interfaces.
	// Default: ""
	BindAddress string `yaml:"bind_address"`

	// ReadHeaderTimeout bounds reading request headers. Zero means no
	// timeout.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is how long keep-alive connections wait for the next
	// request.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long in-flight requests may drain when an
	// instance is stopped before connections are force-closed.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// ForwardingConfig tunes request forwarding.
type ForwardingConfig struct {
	// MaxBodyBytes caps JSON and form bodies that are re-encoded before
	// forwarding. Larger bodies are rejected with 413.
	// Default: 52428800 (50MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// UpstreamTimeout bounds the wait for upstream response headers.
	// Zero means no timeout.
	// Default: 0
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`

	// XForwarded adds X-Forwarded-For/Host/Proto to forwarded requests.
	// Default: false
	XForwarded bool `yaml:"x_forwarded"`
}

// CORSConfig contains Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are added.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is the list of allowed origins. "*" allows any.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is advertised in preflight responses.
	// Default: [GET, HEAD, PUT, PATCH, POST, DELETE]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is advertised in preflight responses. Empty reflects
	// the request's Access-Control-Request-Headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists response headers readable by browsers.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache lifetime in seconds. Zero omits it.
	MaxAge int `yaml:"max_age"`

	// AllowCredentials sets Access-Control-Allow-Credentials.
	AllowCredentials bool `yaml:"allow_credentials"`
}

// ControlConfig configures the local control API.
type ControlConfig struct {
	// Enabled starts the control API with `relay run`.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the host:port the control API binds to.
	// Default: "127.0.0.1:7070"
	ListenAddress string `yaml:"listen_address"`
}

// HistoryConfig configures lifecycle event history.
type HistoryConfig struct {
	// Enabled turns event recording on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend: "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// AsyncBuffer is the size of the recorder's event queue.
	// Default: 256
	AsyncBuffer int `yaml:"async_buffer"`

	// Retention configures pruning of old events.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig configures the SQLite history backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/relay.db"
	Path string `yaml:"path"`

	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3"
	// (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`
}

// RetentionConfig configures history pruning.
type RetentionConfig struct {
	// Days is the maximum age of kept events. Zero keeps events forever.
	// Default: 30
	Days int `yaml:"days"`

	// MaxRecords is the maximum number of kept events. Zero is unlimited.
	// Default: 10000
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a standard 5-field cron expression.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials in logged values.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes /metrics on the control API.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of new traces sampled, in [0,1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`
}
