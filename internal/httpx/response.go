// Package httpx holds the small JSON response helpers shared by all handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error  string   `json:"error"`
	Errors []string `json:"errors,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			// best-effort error response; avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// JSONError writes a stable machine code plus optional human-readable
// messages for the form layer to display.
func JSONError(w http.ResponseWriter, status int, code string, messages ...string) {
	JSON(w, status, ErrorResponse{Error: code, Errors: messages})
}
