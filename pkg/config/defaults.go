package config

import (
	"time"

	"relaydesk/relay/pkg/proxy/types"
)

// Default values for configuration fields.
const (
	// Server defaults
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxHeaderBytes    = 1048576 // 1MB

	// Forwarding defaults
	DefaultMaxBodyBytes = int64(50 * 1024 * 1024)

	// Control defaults
	DefaultControlListenAddress = "127.0.0.1:7070"

	// History defaults
	DefaultHistoryBackend       = "sqlite"
	DefaultHistorySQLitePath    = "data/relay.db"
	DefaultHistorySQLiteDriver  = "sqlite"
	DefaultHistorySQLiteBusy    = 5 * time.Second
	DefaultHistoryAsyncBuffer   = 256
	DefaultHistoryRetentionDays = 30
	DefaultHistoryRetentionMax  = int64(10000)
	DefaultHistoryPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsNamespace   = "relay"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "relay"
)

// DefaultCORSMethods are advertised in preflight responses by default.
var DefaultCORSMethods = []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"}

// Defaults returns a fully populated configuration. Loading starts from it,
// so booleans whose default is true stay true unless the file sets them.
func Defaults() *Config {
	return &Config{
		Proxy: ProxySettings{
			ProxyConfig: types.DefaultProxyConfig(),
			Autostart:   true,
		},
		Server: ServerConfig{
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
			MaxHeaderBytes:    DefaultMaxHeaderBytes,
		},
		Forwarding: ForwardingConfig{
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: append([]string(nil), DefaultCORSMethods...),
		},
		Control: ControlConfig{
			Enabled:       true,
			ListenAddress: DefaultControlListenAddress,
		},
		History: HistoryConfig{
			Enabled: true,
			Backend: DefaultHistoryBackend,
			SQLite: SQLiteConfig{
				Path:        DefaultHistorySQLitePath,
				Driver:      DefaultHistorySQLiteDriver,
				BusyTimeout: DefaultHistorySQLiteBusy,
				WALMode:     true,
			},
			AsyncBuffer: DefaultHistoryAsyncBuffer,
			Retention: RetentionConfig{
				Days:          DefaultHistoryRetentionDays,
				MaxRecords:    DefaultHistoryRetentionMax,
				PruneSchedule: DefaultHistoryPruneSchedule,
			},
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:         DefaultLoggingLevel,
				Format:        DefaultLoggingFormat,
				RedactSecrets: true,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: DefaultMetricsNamespace,
			},
			Tracing: TracingConfig{
				Endpoint:    DefaultTracingEndpoint,
				Insecure:    true,
				SampleRatio: DefaultTracingSampleRatio,
				ServiceName: DefaultTracingServiceName,
			},
		},
	}
}

// ApplyDefaults fills fields that were explicitly emptied in a file but have
// no meaningful zero value. Proxy route fields are left alone so that
// validation reports them. This function is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	if cfg.Forwarding.MaxBodyBytes == 0 {
		cfg.Forwarding.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.CORS.AllowedMethods == nil {
		cfg.CORS.AllowedMethods = append([]string(nil), DefaultCORSMethods...)
	}

	if cfg.Control.ListenAddress == "" {
		cfg.Control.ListenAddress = DefaultControlListenAddress
	}

	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistoryBackend
	}
	if cfg.History.SQLite.Path == "" {
		cfg.History.SQLite.Path = DefaultHistorySQLitePath
	}
	if cfg.History.SQLite.Driver == "" {
		cfg.History.SQLite.Driver = DefaultHistorySQLiteDriver
	}
	if cfg.History.SQLite.BusyTimeout == 0 {
		cfg.History.SQLite.BusyTimeout = DefaultHistorySQLiteBusy
	}
	if cfg.History.AsyncBuffer == 0 {
		cfg.History.AsyncBuffer = DefaultHistoryAsyncBuffer
	}
	if cfg.History.Retention.PruneSchedule == "" {
		cfg.History.Retention.PruneSchedule = DefaultHistoryPruneSchedule
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
}
