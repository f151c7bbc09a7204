package server

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/sdzerobot/sdzerobot/errors"
)

func marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps pipeline errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrBusy):
		return http.StatusConflict
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
