package httpapi

import (
	"net/http"
)

type personaSummary struct {
	PersonaID   string            `json:"persona_id"`
	Name        string            `json:"name"`
	ScoreRange  string            `json:"score_range"`
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels,omitempty"`
}

type listPersonasResponse struct {
	AgentName        string           `json:"agent_name"`
	DefaultPersonaID string           `json:"default_persona_id"`
	Personas         []personaSummary `json:"personas"`
}

// handleListPersonas reports the karma-driven behavior modes. The set is
// fixed: a user moves between modes by earning or losing karma, not by
// picking one.
func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	agentName := "Nerina"
	if s.orch != nil {
		agentName = s.orch.AgentName()
	}

	personas := []personaSummary{
		{
			PersonaID:   "hostile",
			Name:        "Hostile",
			ScoreRange:  "below -5",
			Description: "Curt and distant. Replies stay short and unhelpful until the user earns their way back.",
			Labels:      map[string]string{"tone": "cold"},
		},
		{
			PersonaID:   "neutral",
			Name:        "Neutral",
			ScoreRange:  "-5 to 5",
			Description: "Even-handed. The default stance for new users and anyone near zero karma.",
			Labels:      map[string]string{"tone": "even"},
		},
		{
			PersonaID:   "helpful",
			Name:        "Helpful",
			ScoreRange:  "above 5",
			Description: "Warm and generous. Goes the extra mile for users with a good track record.",
			Labels:      map[string]string{"tone": "warm"},
		},
	}

	respondJSON(w, http.StatusOK, listPersonasResponse{
		AgentName:        agentName,
		DefaultPersonaID: "neutral",
		Personas:         personas,
	})
}
