package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"relaydesk/relay/pkg/telemetry/logging"
)

const (
	// RequestIDHeader is the HTTP header for request ID.
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware assigns each request an ID. A client-supplied
// X-Request-ID is kept; otherwise a UUID v4 is generated and added to the
// inbound headers so the upstream sees it too.
//
// The ID is stored in the request context and echoed in the X-Request-ID
// response header unless the upstream already set one.
//
// Example usage:
//
//	handler = RequestIDMiddleware(handler)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(RequestIDHeader, requestID)
		}

		ctx := logging.WithRequestID(r.Context(), requestID)

		dw := newDefaultHeaderWriter(w, http.Header{RequestIDHeader: {requestID}})
		next.ServeHTTP(dw, r.WithContext(ctx))
		dw.apply()
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
