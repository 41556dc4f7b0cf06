package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"relaydesk/relay/pkg/proxy/types"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write JSON response", "error", err)
	}
}

// WriteErrorEnvelope writes env with the status code that matches its
// error title.
func WriteErrorEnvelope(w http.ResponseWriter, env *types.ErrorEnvelope) {
	WriteJSON(w, env.HTTPStatusCode(), env)
}
