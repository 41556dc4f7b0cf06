// Package logging configures the process-wide structured logger.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
//	// Later, after a config reload:
//	_ = logger.SetLevel("debug")
//
// Components derive their own logger with a "component" attribute:
//
//	log := slog.Default().With("component", "server.manager")
//
// # Request IDs
//
// The request ID middleware stores each request's ID with WithRequestID;
// handlers and the forwarder read it back with GetRequestID and attach it to
// their log lines as "request_id".
//
// # Redaction
//
// With RedactSecrets enabled, attributes whose key names a credential
// (token, password, secret, cookie, auth...) are masked, and logged URLs
// have sensitive query parameters replaced:
//
//	upstream_url=http://localhost:3000/cb?code=1&token=abc123
//	upstream_url=http://localhost:3000/cb?code=1&token=%2A%2A%2A
package logging
