package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Values absent from the file keep their defaults. The result is validated.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides for
// that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_PROXY_TARGET_PORT) and always
// take precedence over the file.
//
// The loading sequence is:
// 1. Start from defaults
// 2. Overlay the YAML file
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadOrDefault behaves like LoadConfigWithEnvOverrides but treats a missing
// file as an empty one, so a first run starts from defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
	} else if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// Parse decodes YAML bytes on top of the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envOverride binds one environment variable to a configuration field.
type envOverride struct {
	name  string
	field string
	set   func(cfg *Config, val string) error
}

func stringVar(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		*dst(cfg) = val
		return nil
	}
}

func intVar(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*dst(cfg) = i
		return nil
	}
}

func int64Var(dst func(*Config) *int64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return err
		}
		*dst(cfg) = i
		return nil
	}
}

func boolVar(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

func durationVar(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

func floatVar(dst func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		*dst(cfg) = f
		return nil
	}
}

func listVar(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, val string) error {
		var items []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst(cfg) = items
		return nil
	}
}

var envOverrides = []envOverride{
	{"PROXY_TARGET_HOST", "proxy.target_host", stringVar(func(c *Config) *string { return &c.Proxy.TargetHost })},
	{"PROXY_TARGET_PORT", "proxy.target_port", intVar(func(c *Config) *int { return &c.Proxy.TargetPort })},
	{"PROXY_PROXY_PORT", "proxy.proxy_port", intVar(func(c *Config) *int { return &c.Proxy.ProxyPort })},
	{"PROXY_AUTOSTART", "proxy.autostart", boolVar(func(c *Config) *bool { return &c.Proxy.Autostart })},

	{"SERVER_BIND_ADDRESS", "server.bind_address", stringVar(func(c *Config) *string { return &c.Server.BindAddress })},
	{"SERVER_READ_HEADER_TIMEOUT", "server.read_header_timeout", durationVar(func(c *Config) *time.Duration { return &c.Server.ReadHeaderTimeout })},
	{"SERVER_IDLE_TIMEOUT", "server.idle_timeout", durationVar(func(c *Config) *time.Duration { return &c.Server.IdleTimeout })},
	{"SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout", durationVar(func(c *Config) *time.Duration { return &c.Server.ShutdownTimeout })},
	{"SERVER_MAX_HEADER_BYTES", "server.max_header_bytes", intVar(func(c *Config) *int { return &c.Server.MaxHeaderBytes })},

	{"FORWARDING_MAX_BODY_BYTES", "forwarding.max_body_bytes", int64Var(func(c *Config) *int64 { return &c.Forwarding.MaxBodyBytes })},
	{"FORWARDING_UPSTREAM_TIMEOUT", "forwarding.upstream_timeout", durationVar(func(c *Config) *time.Duration { return &c.Forwarding.UpstreamTimeout })},
	{"FORWARDING_X_FORWARDED", "forwarding.x_forwarded", boolVar(func(c *Config) *bool { return &c.Forwarding.XForwarded })},

	{"CORS_ENABLED", "cors.enabled", boolVar(func(c *Config) *bool { return &c.CORS.Enabled })},
	{"CORS_ALLOWED_ORIGINS", "cors.allowed_origins", listVar(func(c *Config) *[]string { return &c.CORS.AllowedOrigins })},

	{"CONTROL_ENABLED", "control.enabled", boolVar(func(c *Config) *bool { return &c.Control.Enabled })},
	{"CONTROL_LISTEN_ADDRESS", "control.listen_address", stringVar(func(c *Config) *string { return &c.Control.ListenAddress })},

	{"WATCH", "watch", boolVar(func(c *Config) *bool { return &c.Watch })},

	{"HISTORY_ENABLED", "history.enabled", boolVar(func(c *Config) *bool { return &c.History.Enabled })},
	{"HISTORY_BACKEND", "history.backend", stringVar(func(c *Config) *string { return &c.History.Backend })},
	{"HISTORY_SQLITE_PATH", "history.sqlite.path", stringVar(func(c *Config) *string { return &c.History.SQLite.Path })},
	{"HISTORY_SQLITE_DRIVER", "history.sqlite.driver", stringVar(func(c *Config) *string { return &c.History.SQLite.Driver })},
	{"HISTORY_RETENTION_DAYS", "history.retention.days", intVar(func(c *Config) *int { return &c.History.Retention.Days })},
	{"HISTORY_RETENTION_MAX_RECORDS", "history.retention.max_records", int64Var(func(c *Config) *int64 { return &c.History.Retention.MaxRecords })},

	{"TELEMETRY_LOGGING_LEVEL", "telemetry.logging.level", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"TELEMETRY_LOGGING_FORMAT", "telemetry.logging.format", stringVar(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"TELEMETRY_METRICS_ENABLED", "telemetry.metrics.enabled", boolVar(func(c *Config) *bool { return &c.Telemetry.Metrics.Enabled })},
	{"TELEMETRY_TRACING_ENABLED", "telemetry.tracing.enabled", boolVar(func(c *Config) *bool { return &c.Telemetry.Tracing.Enabled })},
	{"TELEMETRY_TRACING_ENDPOINT", "telemetry.tracing.endpoint", stringVar(func(c *Config) *string { return &c.Telemetry.Tracing.Endpoint })},
	{"TELEMETRY_TRACING_SAMPLE_RATIO", "telemetry.tracing.sample_ratio", floatVar(func(c *Config) *float64 { return &c.Telemetry.Tracing.SampleRatio })},
}

// ApplyEnvOverrides applies RELAY_* variables found by lookup to cfg.
// Unparseable values are reported together as a ValidationError and leave
// the corresponding fields unchanged.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []FieldError
	for _, o := range envOverrides {
		val, ok := lookup(EnvPrefix + o.name)
		if !ok || val == "" {
			continue
		}
		if err := o.set(cfg, val); err != nil {
			errs = append(errs, FieldError{
				Field:   o.field,
				Message: fmt.Sprintf("invalid value %q in %s%s: %v", val, EnvPrefix, o.name, err),
			})
		}
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}
