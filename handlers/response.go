package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// APIError is one entry of the envelope's errors list.
type APIError struct {
	Source       string `json:"source,omitempty"`
	Message      string `json:"message"`
	Instructions string `json:"instructions,omitempty"`
}

// Envelope wraps every JSON response.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Errors []APIError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("failed to write response", zap.Error(err))
	}
}

func writeSuccess(w http.ResponseWriter, status int, data any, errs ...APIError) {
	writeJSON(w, status, Envelope{Status: "success", Data: data, Errors: errs})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: "error", Errors: []APIError{{Message: message}}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
