package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"relaydesk/relay/pkg/proxy/types"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.target_port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether any error refers to field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateForwarding(&cfg.Forwarding)...)
	errs = append(errs, validateControl(&cfg.Control)...)
	errs = append(errs, validateHistory(&cfg.History)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateProxy maps the route rules of types.ProxyConfig onto field paths.
func validateProxy(cfg *ProxySettings) []FieldError {
	err := cfg.ProxyConfig.Validate()
	if err == nil {
		return nil
	}

	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		return []FieldError{{Field: "proxy", Message: err.Error()}}
	}

	errs := make([]FieldError, 0, len(cfgErr.Problems))
	for _, problem := range cfgErr.Problems {
		field := "proxy"
		switch {
		case strings.HasPrefix(problem, "targetHost"):
			field = "proxy.target_host"
		case strings.HasPrefix(problem, "targetPort"):
			field = "proxy.target_port"
		case strings.HasPrefix(problem, "proxyPort"):
			field = "proxy.proxy_port"
		}
		errs = append(errs, FieldError{Field: field, Message: problem})
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.BindAddress != "" && net.ParseIP(cfg.BindAddress) == nil && strings.ContainsAny(cfg.BindAddress, ":/ ") {
		errs = append(errs, FieldError{
			Field:   "server.bind_address",
			Message: "bind address must be a host name or IP address without a port",
		})
	}
	if cfg.ReadHeaderTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_header_timeout", Message: "must be non-negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "must be non-negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be non-negative"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must be non-negative"})
	}
	return errs
}

func validateForwarding(cfg *ForwardingConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "forwarding.max_body_bytes", Message: "must be non-negative"})
	}
	if cfg.UpstreamTimeout < 0 {
		errs = append(errs, FieldError{Field: "forwarding.upstream_timeout", Message: "must be non-negative"})
	}
	return errs
}

func validateControl(cfg *ControlConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ListenAddress == "" {
		return []FieldError{{Field: "control.listen_address", Message: "listen address is required when the control API is enabled"}}
	}
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return []FieldError{{Field: "control.listen_address", Message: fmt.Sprintf("invalid host:port: %v", err)}}
	}
	return nil
}

func validateHistory(cfg *HistoryConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "history.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		switch cfg.SQLite.Driver {
		case "sqlite", "sqlite3":
		default:
			errs = append(errs, FieldError{
				Field:   "history.sqlite.driver",
				Message: fmt.Sprintf("unknown driver %q (want sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "history.sqlite.busy_timeout", Message: "must be non-negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "history.backend",
			Message: fmt.Sprintf("unknown backend %q (want sqlite or memory)", cfg.Backend),
		})
	}

	if cfg.AsyncBuffer < 0 {
		errs = append(errs, FieldError{Field: "history.async_buffer", Message: "must be non-negative"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "history.retention.days", Message: "must be non-negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "history.retention.max_records", Message: "must be non-negative"})
	}
	if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "history.retention.prune_schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown log format %q", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		errs = append(errs, FieldError{Field: "telemetry.metrics.namespace", Message: "namespace is required"})
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("sample ratio %v must be between 0 and 1", cfg.Tracing.SampleRatio),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required when tracing is enabled"})
	}

	return errs
}
