package httpapi

import (
	"net/http"
	"time"

	"github.com/antoniostano/nerina/internal/observability"
)

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.TurnStageSnapshot{
			GeneratedAt: time.Now().UTC(),
			Stages:      []observability.TurnStageStats{},
		})
		return
	}
	snap := s.metrics.TurnStageSnapshot()
	if snap.Stages == nil {
		snap.Stages = []observability.TurnStageStats{}
	}
	respondJSON(w, http.StatusOK, snap)
}
