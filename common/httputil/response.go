package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the JSON shape returned for every non-2xx pipeline response.
type ErrorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteJSON writes a JSON response with the given status code and data.
// Encoding failures are logged; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteError writes an ErrorBody. status is "rejected" for 4xx and "error"
// for everything else.
func WriteError(w http.ResponseWriter, code int, kind, detail string) {
	status := "error"
	if code >= 400 && code < 500 {
		status = "rejected"
	}
	WriteJSON(w, code, ErrorBody{Status: status, Error: kind, Detail: detail})
}
