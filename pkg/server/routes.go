package server

import (
	"net/http"

	"relaydesk/relay/pkg/proxy"
	"relaydesk/relay/pkg/proxy/handlers"
	"relaydesk/relay/pkg/proxy/middleware"
	"relaydesk/relay/pkg/proxy/types"
)

// routes builds the handler for one instance. The health probe is
// matched on the exact path; everything else goes to the forwarder
// untouched, so paths are not cleaned or redirected the way
// http.ServeMux would.
func (m *Manager) routes(cfg types.ProxyConfig, fwd *proxy.Forwarder) http.Handler {
	health := handlers.NewHealthHandler(cfg)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == handlers.HealthPath {
			health.ServeHTTP(w, r)
			return
		}
		fwd.ServeHTTP(w, r)
	})

	// CORS middleware
	handler = middleware.CORSMiddleware(m.opts.CORS)(handler)

	// Logging middleware
	handler = middleware.LoggingMiddleware(m.opts.Logger)(handler)

	// Request ID middleware
	handler = middleware.RequestIDMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}
