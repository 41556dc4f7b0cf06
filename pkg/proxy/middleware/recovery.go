package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"relaydesk/relay/pkg/proxy"
	"relaydesk/relay/pkg/proxy/types"
)

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// response in the proxy's JSON error envelope. The panic is logged with its
// stack trace; the client only sees a generic message.
//
// http.ErrAbortHandler is re-panicked so net/http can abort the connection
// quietly, which is how an upstream failing mid-body is surfaced.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", err,
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			proxy.WriteErrorEnvelope(w, types.NewErrorEnvelope(
				types.ErrorInternal,
				"An internal error occurred. Please try again later.",
				"",
			))
		}()

		next.ServeHTTP(w, r)
	})
}
