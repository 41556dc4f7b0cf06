// Package middleware provides the HTTP middleware wrapped around every
// proxy instance.
//
// # Middleware Chain
//
// The lifecycle manager builds each instance's handler as:
//
//	handler = Recovery(RequestID(Logging(CORS(router))))
//
// Order (outermost first):
//  1. Recovery: Turn panics into a 500 error envelope
//  2. RequestID: Assign X-Request-ID and store it in the context
//  3. Logging: Log method, path, status and latency
//  4. CORS: Answer preflights and add CORS headers
//
// # Request ID
//
// RequestIDMiddleware keeps a client-supplied X-Request-ID or generates a
// UUID v4:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
//
// The ID is added to the inbound headers, so the upstream receives it, and
// is echoed in the response unless the upstream answered with its own.
//
// # CORS
//
// CORSMiddleware answers preflight requests locally with 204 and adds
// Access-Control-* headers to forwarded responses where the upstream did
// not set them:
//
//	cors := &CORSConfig{
//	    Enabled:        true,
//	    AllowedOrigins: []string{"https://app.example.com"},
//	    ExposedHeaders: []string{"X-Request-ID"},
//	}
//	handler = CORSMiddleware(cors)(handler)
//
// # Recovery
//
// RecoveryMiddleware logs the panic with a stack trace and writes
//
//	{"error":"Internal Server Error","message":"An internal error occurred. Please try again later.","timestamp":"..."}
//
// http.ErrAbortHandler is re-raised so the connection is aborted instead.
package middleware
