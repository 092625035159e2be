package api

import (
	"net/http"

	"aqualog/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.Load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings applies a partial update and returns the result.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decode(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Settings.Apply(r.Context(), patch); err != nil {
		s.fail(w, r, err)
		return
	}
	s.handleGetSettings(w, r)
}
