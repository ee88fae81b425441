package api

import (
	"net/http"
)

// handleHealth reports liveness and the last fully indexed block
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	block, ok, err := s.store.LoadCheckpoint(r.Context(), s.config.Checkpoint)
	if err != nil {
		s.logger.WithError(err).Warn("Health check could not read checkpoint")
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store unavailable", nil)
		return
	}

	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "stele-indexer",
	}
	if ok {
		resp["lastIndexedBlock"] = block
	}
	respondJSON(w, http.StatusOK, resp)
}
