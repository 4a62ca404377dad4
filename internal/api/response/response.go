package response

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// ErrorBody is the JSON shape of every error response. Output carries the
// verbatim output of a failed command.
type ErrorBody struct {
	Error  string `json:"error"`
	Output string `json:"output,omitempty"`
}

// WriteCommandError writes an error response that includes command output.
func WriteCommandError(w http.ResponseWriter, status int, message, output string) {
	WriteJSON(w, status, ErrorBody{Error: message, Output: output})
}
