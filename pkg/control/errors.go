package control

import "fmt"

// APIError is returned by the Client when the control API answers with an
// error that is not a lifecycle result.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error reported by the server, or the raw body.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("control API error (status %d): %s", e.StatusCode, e.Message)
}

// UnreachableError is returned when the control API cannot be contacted,
// typically because no relay process is running.
type UnreachableError struct {
	Address string
	Cause   error
}

// Error implements the error interface.
func (e *UnreachableError) Error() string {
	return fmt.Sprintf("relay control API at %s is unreachable: %v", e.Address, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UnreachableError) Unwrap() error {
	return e.Cause
}
