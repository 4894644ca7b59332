package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/nerina/internal/brain"
	"github.com/antoniostano/nerina/internal/diffusion"
	"github.com/antoniostano/nerina/internal/history"
	"github.com/antoniostano/nerina/internal/imagestore"
	"github.com/antoniostano/nerina/internal/ingest"
	"github.com/antoniostano/nerina/internal/observability"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
	"github.com/antoniostano/nerina/internal/userlock"
)

// ChatRequest is one incoming user turn.
type ChatRequest struct {
	UserID   string
	Username string
	Text     string
	// TurnID is optional; the transport supplies one when delta frames must
	// share an id with the final reply.
	TurnID string
	// Images are base64 attachments for this turn.
	Images []string
	// OnDelta, when set, receives visible-text fragments while the model
	// streams. Directive tags are filtered out before delivery.
	OnDelta brain.DeltaHandler
}

// ChatResponse is the finalized reply for one turn.
type ChatResponse struct {
	TurnID string `json:"turn_id"`
	Text   string `json:"text"`
	// Images holds stored references to images produced this turn.
	Images     []string          `json:"images,omitempty"`
	KarmaDelta int               `json:"karma_delta"`
	Score      int               `json:"score"`
	Directive  profile.Directive `json:"directive"`
}

// Ingestor accepts completed exchanges for background memory work.
type Ingestor interface {
	Schedule(ex ingest.Exchange) bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	AgentName          string
	Brain              brain.Client
	Renderer           diffusion.Renderer
	Images             *imagestore.Store
	History            *history.Store
	Profiles           profile.Store
	Memory             *semantic.Memory
	Locks              *userlock.Registry
	Ingest             Ingestor
	Metrics            *observability.Metrics
	ContextLengthText  int
	ContextLengthImage int
}

// Orchestrator runs the synchronous turn path: assemble context, generate,
// apply reply directives, record history, schedule background ingestion.
// Turns for one user serialize on the user's lock; unrelated users proceed
// in parallel.
type Orchestrator struct {
	agentName string
	brain     brain.Client
	renderer  diffusion.Renderer
	images    *imagestore.Store
	turns     *history.Store
	profiles  profile.Store
	memory    *semantic.Memory
	locks     *userlock.Registry
	ingest    Ingestor
	metrics   *observability.Metrics
	assembler *Assembler
}

func New(cfg Config) *Orchestrator {
	if cfg.AgentName == "" {
		cfg.AgentName = "Nerina"
	}
	if cfg.Locks == nil {
		cfg.Locks = userlock.NewRegistry()
	}
	if cfg.History == nil {
		cfg.History = history.NewStore(20, cfg.ContextLengthImage)
	}
	return &Orchestrator{
		agentName: cfg.AgentName,
		brain:     cfg.Brain,
		renderer:  cfg.Renderer,
		images:    cfg.Images,
		turns:     cfg.History,
		profiles:  cfg.Profiles,
		memory:    cfg.Memory,
		locks:     cfg.Locks,
		ingest:    cfg.Ingest,
		metrics:   cfg.Metrics,
		assembler: NewAssembler(cfg.AgentName, cfg.Profiles, cfg.Memory, cfg.History, cfg.ContextLengthText, cfg.Metrics),
	}
}

func (o *Orchestrator) AgentName() string { return o.agentName }

// Respond handles one turn end to end. The reply is final only after every
// karma directive has been durably applied; image failures degrade to a
// text-only reply instead of failing the turn.
func (o *Orchestrator) Respond(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	started := time.Now()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return ChatResponse{}, fmt.Errorf("user id is required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.Images) == 0 {
		return ChatResponse{}, fmt.Errorf("turn carries neither text nor images")
	}

	unlock := o.locks.Lock(userID)
	defer unlock()

	if username := strings.TrimSpace(req.Username); username != "" {
		if err := o.profiles.SetUsername(ctx, userID, username); err != nil {
			return ChatResponse{}, fmt.Errorf("set username: %w", err)
		}
	}

	assembleStart := time.Now()
	assembled := o.assembler.Assemble(ctx, userID, text, req.Images)
	o.metrics.ObserveTurnStage("assemble_total", time.Since(assembleStart))

	var filter *DeltaFilter
	if req.OnDelta != nil {
		filter = NewDeltaFilter(req.OnDelta)
	}
	modelStart := time.Now()
	sawDelta := false
	reply, err := o.brain.StreamReply(ctx, brain.GenerateRequest{
		System:   assembled.System,
		Messages: assembled.Messages,
	}, func(delta string) error {
		if !sawDelta {
			sawDelta = true
			o.metrics.ObserveTurnStage("generate_first_delta", time.Since(modelStart))
		}
		if filter != nil {
			return filter.Write(delta)
		}
		return nil
	})
	if err != nil {
		o.metrics.IncProviderError("brain", "generate")
		return ChatResponse{}, fmt.Errorf("generate reply: %w", err)
	}
	if filter != nil {
		if err := filter.Flush(); err != nil {
			log.Printf("agent: flush deltas for %s: %v", userID, err)
		}
	}

	visible, intents := ScanReply(reply.Text)
	visible = strings.TrimSpace(strings.ReplaceAll(visible, o.agentName+": ", ""))

	turnID := strings.TrimSpace(req.TurnID)
	if turnID == "" {
		turnID = uuid.NewString()
	}
	resp := ChatResponse{
		TurnID:    turnID,
		Text:      visible,
		Score:     assembled.Profile.Score,
		Directive: profile.DirectiveFor(assembled.Profile.Score),
	}

	note, err := o.applyIntents(ctx, userID, text, req.Images, intents, &resp)
	if err != nil {
		return ChatResponse{}, err
	}

	// Attachments are persisted so later edit intents can find them.
	var attachedRefs []string
	for _, payload := range req.Images {
		name, err := o.images.SaveBase64(payload)
		if err != nil {
			log.Printf("agent: store attachment for %s: %v", userID, err)
			continue
		}
		attachedRefs = append(attachedRefs, name)
	}

	now := time.Now()
	o.turns.Append(userID, history.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  req.Username,
		Role:      history.RoleUser,
		Content:   text,
		Images:    attachedRefs,
		CreatedAt: now,
	})
	o.turns.Append(userID, history.Turn{
		ID:        resp.TurnID,
		UserID:    userID,
		Role:      history.RoleAssistant,
		Content:   visible + note,
		Images:    resp.Images,
		CreatedAt: now,
	})

	o.ScheduleIngestion(ingest.Exchange{
		UserID:   userID,
		Username: req.Username,
		UserText: text,
		Reply:    resp.Text,
	})

	o.metrics.ObserveReplyLatency(time.Since(started))
	o.metrics.ObserveTurnStage("turn_total", time.Since(started))
	o.metrics.IncSessionEvent("turn")
	return resp, nil
}

// applyIntents executes reply directives in order. A failed karma write
// aborts the turn; render failures only cost the image. The returned note is
// appended to the assistant's history entry so the model learns about a
// missing edit source without the user seeing an error.
func (o *Orchestrator) applyIntents(ctx context.Context, userID, userText string, attached []string, intents []Intent, resp *ChatResponse) (string, error) {
	var note string
	for _, it := range intents {
		switch it.Kind {
		case IntentKarma:
			score, err := o.profiles.UpdateKarma(ctx, userID, it.Delta)
			if err != nil {
				return "", fmt.Errorf("apply karma: %w", err)
			}
			o.metrics.IncKarmaUpdate("intent")
			resp.KarmaDelta += it.Delta
			resp.Score = score
			resp.Directive = profile.DirectiveFor(score)

		case IntentGenerate:
			prompt := it.Prompt
			if prompt == "" {
				prompt = resp.Text
			}
			if prompt == "" {
				prompt = userText
			}
			if name, ok := o.render(ctx, prompt, nil); ok {
				resp.Images = append(resp.Images, name)
			}

		case IntentEdit:
			source, ok := o.resolveEditSource(attached, userID)
			if !ok {
				note = " [no source image was available to edit]"
				continue
			}
			prompt := it.Prompt
			if prompt == "" {
				prompt = userText
			}
			if name, ok := o.render(ctx, prompt, source); ok {
				resp.Images = append(resp.Images, name)
			}
		}
	}
	return note, nil
}

// resolveEditSource picks the image an edit applies to: an attachment on the
// current turn wins, else the single most recent image in the user's
// history, else nothing.
func (o *Orchestrator) resolveEditSource(attached []string, userID string) ([]byte, bool) {
	if len(attached) > 0 {
		img, err := base64.StdEncoding.DecodeString(attached[0])
		if err == nil {
			return img, true
		}
		log.Printf("agent: attached image is not valid base64: %v", err)
	}
	if names := o.turns.RecentImages(userID, 1); len(names) > 0 {
		img, err := o.images.Load(names[0])
		if err == nil {
			return img, true
		}
		log.Printf("agent: load history image %q: %v", names[0], err)
	}
	return nil, false
}

func (o *Orchestrator) render(ctx context.Context, prompt string, source []byte) (string, bool) {
	var (
		img []byte
		err error
	)
	if source == nil {
		img, err = o.renderer.Generate(ctx, prompt)
	} else {
		img, err = o.renderer.Edit(ctx, prompt, source)
	}
	if err != nil {
		log.Printf("agent: render image: %v", err)
		o.metrics.IncProviderError("diffusion", "render")
		return "", false
	}
	name, err := o.images.Save(img)
	if err != nil {
		log.Printf("agent: store rendered image: %v", err)
		return "", false
	}
	return name, true
}

// AssembleContext builds the model input for a hypothetical turn without
// side effects.
func (o *Orchestrator) AssembleContext(ctx context.Context, userID, text string, images []string) Context {
	return o.assembler.Assemble(ctx, userID, text, images)
}

// ScheduleIngestion hands a completed exchange to the background pipeline
// and returns immediately. A full queue drops the job with a log line.
func (o *Orchestrator) ScheduleIngestion(ex ingest.Exchange) {
	if o.ingest == nil {
		return
	}
	if !o.ingest.Schedule(ex) {
		log.Printf("agent: ingestion queue full, dropping job for %s", ex.UserID)
	}
}

// ApplyKarmaDelta mutates the user's score synchronously and durably.
func (o *Orchestrator) ApplyKarmaDelta(ctx context.Context, userID string, delta int) (int, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	score, err := o.profiles.UpdateKarma(ctx, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("apply karma: %w", err)
	}
	o.metrics.IncKarmaUpdate("api")
	return score, nil
}

// ProfileSnapshot returns the stored profile without mutating it.
func (o *Orchestrator) ProfileSnapshot(ctx context.Context, userID string) (profile.Profile, error) {
	return o.profiles.Get(ctx, userID)
}

// RecallPreview runs a threshold-filtered memory query for inspection
// surfaces. It is fail-closed like the assembly path.
func (o *Orchestrator) RecallPreview(ctx context.Context, userID, query string, k int) []semantic.Fact {
	if o.memory == nil {
		return nil
	}
	return o.memory.RecallN(ctx, userID, query, k)
}
