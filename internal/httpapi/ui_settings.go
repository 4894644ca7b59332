package httpapi

import "net/http"

type uiSettingsResponse struct {
	AgentName         string `json:"agent_name"`
	SessionTTLMS      int64  `json:"session_ttl_ms"`
	ImageBackend      string `json:"image_backend"`
	MaxUploadBytes    int64  `json:"max_upload_bytes"`
	StreamingEnabled  bool   `json:"streaming_enabled"`
	MemoryEventsShown bool   `json:"memory_events_shown"`
}

// handleUISettings hands the chat page everything it needs before the
// websocket opens, so the UI carries no hardcoded copies of server config.
func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	agentName := "Nerina"
	if s.orch != nil {
		agentName = s.orch.AgentName()
	}
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		AgentName:         agentName,
		SessionTTLMS:      s.cfg.SessionInactivityTimeout.Milliseconds(),
		ImageBackend:      s.diffusionBackend(),
		MaxUploadBytes:    wsReadLimit,
		StreamingEnabled:  true,
		MemoryEventsShown: s.events != nil,
	})
}
