package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aqualog/internal/models"
)

// storageNotice is shown to the user when the local database refuses a
// read or write. The front-end renders it as a dismissible banner.
const storageNotice = "Your data could not be saved or loaded right now. Please try again."

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps a service error to a response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrAuth):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrStorage):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("storage failure")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"notice": storageNotice})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	return nil
}
