package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/nerina/internal/agent"
	"github.com/antoniostano/nerina/internal/config"
	"github.com/antoniostano/nerina/internal/imagestore"
	"github.com/antoniostano/nerina/internal/ingest"
	"github.com/antoniostano/nerina/internal/observability"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/protocol"
	"github.com/antoniostano/nerina/internal/semantic"
	"github.com/antoniostano/nerina/internal/session"
)

// wsReadLimit bounds a single inbound websocket frame. Attached images travel
// base64-encoded inside the frame, so this is also the effective upload cap.
const wsReadLimit = 8 << 20

// Orchestrator is the turn-path surface the HTTP layer drives.
type Orchestrator interface {
	AgentName() string
	Respond(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error)
	ApplyKarmaDelta(ctx context.Context, userID string, delta int) (int, error)
	ProfileSnapshot(ctx context.Context, userID string) (profile.Profile, error)
	RecallPreview(ctx context.Context, userID, query string, k int) []semantic.Fact
}

// MemoryEvents exposes the background ingestion pipeline to clients.
type MemoryEvents interface {
	Subscribe(userID string) (<-chan ingest.Event, func())
	Jobs(limit int) []ingest.Job
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	orch     Orchestrator
	events   MemoryEvents
	images   *imagestore.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, sessions *session.Manager, orch Orchestrator, events MemoryEvents, images *imagestore.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		orch:     orch,
		events:   events,
		images:   images,
		metrics:  metrics,
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the same
				// origin. This prevents other websites from driving a user's chat
				// session if Nerina is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/chat/session", s.handleCreateSession)
	r.Post("/v1/chat/session/{id}/end", s.handleEndSession)

	r.Get("/v1/users/{id}/profile", s.handleGetProfile)
	r.Post("/v1/users/{id}/karma", s.handleApplyKarma)
	r.Get("/v1/users/{id}/memories", s.handleRecallPreview)

	r.Get("/v1/images/{name}", s.handleGetImage)
	r.Get("/v1/personas", s.handleListPersonas)
	r.Get("/v1/ui/settings", s.handleUISettings)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/ingest/jobs", s.handleListIngestJobs)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"model_mode":      s.modelMode(),
		"memory_backend":  s.memoryBackend(),
		"profile_backend": s.profileBackend(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"model_mode":      s.modelMode(),
		"memory_backend":  s.memoryBackend(),
		"profile_backend": s.profileBackend(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID, strings.TrimSpace(req.Username))
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	s.metrics.IncSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Username:        sess.Username,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	s.metrics.IncSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.orch == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.IncSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	writeFrame := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			if s.metrics != nil {
				s.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
			}
			cancel()
			return false
		}
		if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
		return true
	}
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				// Flush frames queued before the cancel, the session-ended
				// ack in particular.
				for {
					select {
					case msg := <-outbound:
						if !writeFrame(msg) {
							return
						}
					default:
						return
					}
				}
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if !writeFrame(msg) {
					return
				}
			}
		}
	}()

	if s.events != nil {
		evCh, evCancel := s.events.Subscribe(sess.UserID)
		defer evCancel()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-evCh:
					if !ok {
						return
					}
					s.enqueue(ctx, outbound, protocol.MemoryEvent{
						Type:        protocol.TypeMemoryEvent,
						SessionID:   sessionID,
						JobID:       ev.JobID,
						FactsStored: ev.FactsStored,
						Summarized:  ev.Summarized,
						Error:       ev.Error,
					}, false)
				}
			}
		}()
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(ctx, outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}, false)
			continue
		}
		if t, ok := messageTypeOf(parsed); ok && s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			switch msg.Action {
			case "end":
				if _, err := s.sessions.End(sessionID); err == nil {
					if s.metrics != nil {
						s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
					}
					s.metrics.IncSessionEvent("ended")
				}
				s.enqueue(ctx, outbound, protocol.SystemEvent{
					Type:      protocol.TypeSystemEvent,
					SessionID: sessionID,
					Code:      "session_ended",
				}, true)
				break readLoop
			case "ping":
				_ = s.sessions.Touch(sessionID)
				s.enqueue(ctx, outbound, protocol.SystemEvent{
					Type:      protocol.TypeSystemEvent,
					SessionID: sessionID,
					Code:      "pong",
				}, false)
			default:
				s.enqueue(ctx, outbound, protocol.ErrorEvent{
					Type:      protocol.TypeErrorEvent,
					SessionID: sessionID,
					Code:      "unknown_action",
					Source:    "gateway",
					Detail:    msg.Action,
				}, false)
			}
		case protocol.ClientMessage:
			s.runTurn(ctx, sess, msg, outbound)
		}

		select {
		case <-ctx.Done():
			break readLoop
		default:
		}
	}

	cancel()
	<-writerDone
	s.metrics.IncSessionEvent("ws_disconnected")
}

// runTurn drives one websocket turn: deltas stream while the model talks,
// the turn-end frame lands only after karma is durably applied.
func (s *Server) runTurn(ctx context.Context, sess *session.Session, msg protocol.ClientMessage, outbound chan<- any) {
	turnID := uuid.NewString()
	resp, err := s.orch.Respond(ctx, agent.ChatRequest{
		UserID:   sess.UserID,
		Username: sess.Username,
		Text:     msg.Text,
		TurnID:   turnID,
		Images:   msg.Images,
		OnDelta: func(delta string) error {
			s.enqueue(ctx, outbound, protocol.AssistantTextDelta{
				Type:      protocol.TypeAssistantTextDelta,
				SessionID: sess.ID,
				TurnID:    turnID,
				TextDelta: delta,
			}, false)
			return nil
		},
	})
	if err != nil {
		s.enqueue(ctx, outbound, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sess.ID,
			Code:      "turn_failed",
			Source:    "orchestrator",
			Retryable: true,
			Detail:    err.Error(),
		}, true)
		return
	}

	_ = s.sessions.NoteTurn(sess.ID, resp.TurnID)

	s.enqueue(ctx, outbound, protocol.AssistantTurnEnd{
		Type:       protocol.TypeAssistantTurnEnd,
		SessionID:  sess.ID,
		TurnID:     resp.TurnID,
		Text:       resp.Text,
		Images:     resp.Images,
		KarmaDelta: resp.KarmaDelta,
		Score:      resp.Score,
		Directive:  string(resp.Directive),
	}, true)

	if resp.KarmaDelta != 0 {
		s.enqueue(ctx, outbound, protocol.KarmaEvent{
			Type:      protocol.TypeKarmaEvent,
			SessionID: sess.ID,
			TurnID:    resp.TurnID,
			Delta:     resp.KarmaDelta,
			Score:     resp.Score,
			Directive: string(resp.Directive),
		}, false)
	}
}

// enqueue puts a message on the outbound queue. Critical messages wait for
// room; the rest are dropped when the writer cannot keep up, keeping the
// websocket writes single-threaded.
func (s *Server) enqueue(ctx context.Context, outbound chan<- any, msg any, critical bool) {
	t, _ := messageTypeOf(msg)
	if critical {
		select {
		case <-ctx.Done():
		case outbound <- msg:
			s.metrics.ObserveOutboundMessage(string(t), "queued")
		}
		return
	}
	select {
	case outbound <- msg:
		s.metrics.ObserveOutboundMessage(string(t), "queued")
	default:
		s.metrics.ObserveOutboundMessage(string(t), "drop_full")
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientMessage:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTextDelta:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.KarmaEvent:
		return m.Type, true
	case protocol.MemoryEvent:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
