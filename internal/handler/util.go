package handler

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the flat error envelope every JSON endpoint uses,
// matching the body shape of the rate limiter's 429 responses.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
