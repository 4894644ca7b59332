package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/nerina/internal/agent"
	"github.com/antoniostano/nerina/internal/ingest"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
)

type chatRequest struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username,omitempty"`
	Text     string   `json:"text"`
	Images   []string `json:"images,omitempty"`
}

// handleChat runs one full turn without a websocket: no streaming, the
// response carries the final reply after karma has been applied.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 {
		respondError(w, http.StatusBadRequest, "empty_turn", "text or images required")
		return
	}

	resp, err := s.orch.Respond(r.Context(), agent.ChatRequest{
		UserID:   req.UserID,
		Username: strings.TrimSpace(req.Username),
		Text:     req.Text,
		Images:   req.Images,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "turn_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if s.orch == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	prof, err := s.orch.ProfileSnapshot(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "profile_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, prof)
}

type karmaRequest struct {
	Delta int `json:"delta"`
}

type karmaResponse struct {
	UserID    string `json:"user_id"`
	Score     int    `json:"score"`
	Directive string `json:"directive"`
}

func (s *Server) handleApplyKarma(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if s.orch == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	var req karmaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Delta == 0 {
		respondError(w, http.StatusBadRequest, "zero_delta", "delta must be non-zero")
		return
	}

	score, err := s.orch.ApplyKarmaDelta(r.Context(), userID, req.Delta)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "karma_update_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, karmaResponse{
		UserID:    userID,
		Score:     score,
		Directive: string(profile.DirectiveFor(score)),
	})
}

type recallResponse struct {
	UserID string          `json:"user_id"`
	Query  string          `json:"query"`
	Facts  []semantic.Fact `json:"facts"`
}

// handleRecallPreview exposes the same recall the assembler uses, so an
// operator can see which memories a given message would surface.
func (s *Server) handleRecallPreview(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if s.orch == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			k = n
		}
	}

	facts := s.orch.RecallPreview(r.Context(), userID, query, k)
	if facts == nil {
		facts = []semantic.Fact{}
	}
	respondJSON(w, http.StatusOK, recallResponse{UserID: userID, Query: query, Facts: facts})
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.images == nil {
		respondError(w, http.StatusNotFound, "image_not_found", "image store not configured")
		return
	}
	data, err := s.images.Load(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "image_not_found", err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleListIngestJobs(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondJSON(w, http.StatusOK, map[string]any{"jobs": []ingest.Job{}})
		return
	}
	jobs := s.events.Jobs(50)
	if jobs == nil {
		jobs = []ingest.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
