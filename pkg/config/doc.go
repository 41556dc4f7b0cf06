// Package config provides configuration management for relay.
//
// This package handles loading, validating, saving and watching the relay
// configuration file. The file is YAML; environment variables may override
// any commonly tuned field.
//
// # Configuration Loading
//
// Configuration can be loaded in three ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
//  3. Like (2), but a missing file yields the defaults:
//     cfg, err := config.LoadOrDefault("relay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_PROXY_TARGET_PORT overrides proxy.target_port
//   - RELAY_HISTORY_SQLITE_DRIVER overrides history.sqlite.driver
//   - RELAY_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Persistence
//
// Save writes a validated configuration atomically. The control API uses it
// to persist the proxy route after a successful reconfiguration.
//
// # Hot Reload
//
// Watcher observes the file with fsnotify, debounces bursts of events and
// hands each valid reload to a callback. Invalid edits are logged and
// ignored.
package config
