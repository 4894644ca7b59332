package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antoniostano/nerina/internal/agent"
	"github.com/antoniostano/nerina/internal/config"
	"github.com/antoniostano/nerina/internal/diffusion"
	"github.com/antoniostano/nerina/internal/extraction"
	"github.com/antoniostano/nerina/internal/history"
	"github.com/antoniostano/nerina/internal/httpapi"
	"github.com/antoniostano/nerina/internal/imagestore"
	"github.com/antoniostano/nerina/internal/ingest"
	"github.com/antoniostano/nerina/internal/observability"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
	"github.com/antoniostano/nerina/internal/session"
	"github.com/antoniostano/nerina/internal/userlock"
)

type ModelInfo struct {
	Mode   string
	Detail string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *agent.Orchestrator
	Pipeline     *ingest.Pipeline
	Metrics      *observability.Metrics
	Model        ModelInfo

	// Cleanup should be called on shutdown to release external resources (DB, background workers, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	profiles, err := profile.NewStore(ctx, cfg.DatabaseURL, cfg.ProfileDBPath)
	if err != nil {
		return nil, fmt.Errorf("profile store init failed: %w", err)
	}

	factStore, err := semantic.NewStore(ctx, cfg.DatabaseURL, cfg.ChromemPath, cfg.EmbeddingDim)
	if err != nil {
		_ = profiles.Close()
		return nil, fmt.Errorf("semantic store init failed: %w", err)
	}

	images, err := imagestore.NewStore(cfg.ImageDir)
	if err != nil {
		_ = factStore.Close()
		_ = profiles.Close()
		return nil, fmt.Errorf("image store init failed: %w", err)
	}

	modelSetup, err := resolveModelClient(cfg)
	if err != nil {
		_ = factStore.Close()
		_ = profiles.Close()
		return nil, err
	}
	// Ensure API handlers report the backend actually in use, not "auto".
	cfg.ModelType = modelSetup.resolvedMode

	memory := semantic.NewMemory(modelSetup.client, factStore, float32(cfg.MemoryThreshold), cfg.MemoryRecallCount, cfg.MemoryQueryTimeout)
	renderer := diffusion.NewRenderer(cfg.SDWebUIURL)

	// One lock registry spans the turn path and the ingest pipeline, so a
	// user's background memory work never interleaves with their live turn.
	locks := userlock.NewRegistry()
	turns := history.NewStore(cfg.HistoryMaxLen, cfg.ContextLengthImage)

	pipeline := ingest.New(ingest.Config{
		Extractor:  extraction.NewExtractor(modelSetup.client, cfg.AgentName),
		Summarizer: extraction.NewSummarizer(modelSetup.client, cfg.AgentName, cfg.SummaryWordBudget),
		Memory:     memory,
		Profiles:   profiles,
		Locks:      locks,
		Metrics:    metrics,
		Workers:    cfg.IngestWorkers,
		QueueSize:  cfg.IngestQueueSize,
	})

	orchestrator := agent.New(agent.Config{
		AgentName:          cfg.AgentName,
		Brain:              modelSetup.client,
		Renderer:           renderer,
		Images:             images,
		History:            turns,
		Profiles:           profiles,
		Memory:             memory,
		Locks:              locks,
		Ingest:             pipeline,
		Metrics:            metrics,
		ContextLengthText:  cfg.ContextLengthText,
		ContextLengthImage: cfg.ContextLengthImage,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})
	sessions.StartJanitor(ctx, time.Minute)

	api := httpapi.New(cfg, sessions, orchestrator, pipeline, images, metrics)

	cleanup := func() error {
		var errs []string
		pipeline.Close()
		if err := factStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := profiles.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Metrics:      metrics,
		Model: ModelInfo{
			Mode:   modelSetup.resolvedMode,
			Detail: modelSetup.detail,
		},
		Cleanup: cleanup,
	}, nil
}
