package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON body of every error response. Kind is set for
// ephemeris failures.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, status int, msg, kind string) {
	WriteJSON(w, status, ErrorBody{Error: msg, Kind: kind})
}
