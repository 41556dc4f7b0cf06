package types

import (
	"net/http"
	"time"
)

// TimestampLayout is the ISO-8601 layout used in every JSON timestamp
// (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Error titles used in ErrorEnvelope.Error.
const (
	// ErrorProxy indicates the upstream could not be reached or failed mid-exchange (500).
	ErrorProxy = "Proxy Error"

	// ErrorBadRequest indicates a structured body could not be parsed (400).
	ErrorBadRequest = "Bad Request"

	// ErrorPayloadTooLarge indicates the request body exceeded the configured cap (413).
	ErrorPayloadTooLarge = "Payload Too Large"

	// ErrorInternal indicates a failure inside the proxy itself (500).
	ErrorInternal = "Internal Server Error"
)

// ErrorEnvelope is the JSON body written when a request cannot be forwarded.
//
//	{"error":"Proxy Error","message":"dial tcp ...: connection refused",
//	 "target":"http://localhost:3000","timestamp":"2025-01-01T00:00:00.000Z"}
type ErrorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Target    string `json:"target,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEnvelope creates an envelope stamped with the current time.
func NewErrorEnvelope(title, message, target string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Error:     title,
		Message:   message,
		Target:    target,
		Timestamp: Timestamp(time.Now()),
	}
}

// NewProxyError creates the envelope for an upstream failure.
func NewProxyError(message, target string) *ErrorEnvelope {
	return NewErrorEnvelope(ErrorProxy, message, target)
}

// HTTPStatusCode returns the status code that accompanies the envelope.
func (e *ErrorEnvelope) HTTPStatusCode() int {
	switch e.Error {
	case ErrorBadRequest:
		return http.StatusBadRequest
	case ErrorPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Timestamp formats t in UTC using TimestampLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
