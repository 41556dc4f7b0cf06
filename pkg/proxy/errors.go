package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"relaydesk/relay/pkg/proxy/types"
)

// BodyError is returned by ParseBody when a structured request body cannot
// be accepted. It is answered locally and never reaches the upstream.
type BodyError struct {
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *BodyError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *BodyError) Unwrap() error {
	return e.Cause
}

// HandleError converts an error raised while forwarding into the JSON
// envelope written back to the client. Body errors keep their own status;
// everything else is an upstream failure reported as "Proxy Error".
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorEnvelope(w, HandleError(err, cfg.TargetURL()))
//	    return
//	}
func HandleError(err error, target string) *types.ErrorEnvelope {
	var bodyErr *BodyError
	if errors.As(err, &bodyErr) {
		title := types.ErrorBadRequest
		if bodyErr.Status == http.StatusRequestEntityTooLarge {
			title = types.ErrorPayloadTooLarge
		}
		return types.NewErrorEnvelope(title, bodyErr.Message, target)
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return types.NewErrorEnvelope(
			types.ErrorPayloadTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", maxErr.Limit),
			target,
		)
	}

	return types.NewProxyError(err.Error(), target)
}
