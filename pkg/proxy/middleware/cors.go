package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	Enabled bool

	// AllowedOrigins is a list of allowed origins for CORS.
	// Use ["*"] to allow all origins.
	AllowedOrigins []string

	// AllowedMethods is a list of methods advertised in preflight responses.
	AllowedMethods []string

	// AllowedHeaders is a list of allowed HTTP headers. When empty, the
	// headers named in Access-Control-Request-Headers are reflected.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers exposed to clients.
	ExposedHeaders []string

	// MaxAge is the maximum age (in seconds) for preflight cache.
	// Zero omits the header.
	MaxAge int

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool
}

// DefaultCORSConfig returns a permissive configuration: every origin, the
// common methods, and reflected request headers.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
	}
}

// CORSMiddleware adds Cross-Origin Resource Sharing headers to responses.
//
// Preflight requests (OPTIONS carrying Access-Control-Request-Method) are
// answered locally with 204 and never forwarded. For every other request the
// CORS headers are added to the response only where the upstream did not set
// them itself, so an upstream with its own CORS policy keeps it.
//
// Example usage:
//
//	handler = CORSMiddleware(DefaultCORSConfig())(handler)
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCORSConfig()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			headers := config.responseHeaders(r.Header.Get("Origin"))

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h := w.Header()
				for key, values := range headers {
					h[key] = values
				}
				config.setPreflightHeaders(h, r)
				h.Set("Content-Length", "0")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			dw := newDefaultHeaderWriter(w, headers)
			next.ServeHTTP(dw, r)
			dw.apply()
		})
	}
}

// responseHeaders builds the CORS headers for a request from origin.
func (c *CORSConfig) responseHeaders(origin string) http.Header {
	h := make(http.Header)

	wildcard := slices.Contains(c.AllowedOrigins, "*")
	switch {
	case wildcard && !c.AllowCredentials:
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "" && isOriginAllowed(origin, c.AllowedOrigins):
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return h
	}

	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(c.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
	}
	return h
}

func (c *CORSConfig) setPreflightHeaders(h http.Header, r *http.Request) {
	if len(c.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
	}

	if len(c.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
	} else if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
		h.Set("Access-Control-Allow-Headers", requested)
		h.Add("Vary", "Access-Control-Request-Headers")
	}

	if c.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	}
}

// isOriginAllowed checks if an origin is in the allowed list.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
