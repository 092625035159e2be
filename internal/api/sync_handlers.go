package api

import (
	"net/http"

	"aqualog/internal/syncer"
)

// SyncResponse is the body of POST /api/v1/sync.
type SyncResponse struct {
	Synced bool           `json:"synced"`
	Result *syncer.Result `json:"result,omitempty"`
}

// handleSync runs a sync now. Sync is best effort: a failed run is logged and
// reported as accepted-but-not-synced, never as an error.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Syncer.RunSync(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("on-demand sync failed")
		writeJSON(w, http.StatusAccepted, SyncResponse{Synced: false, Result: &res})
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Synced: true, Result: &res})
}
