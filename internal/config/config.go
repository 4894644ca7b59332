package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion agent service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	AgentName string

	HistoryMaxLen      int
	ContextLengthText  int
	ContextLengthImage int

	MemoryThreshold    float64
	MemoryRecallCount  int
	MemoryQueryTimeout time.Duration
	SummaryWordBudget  int
	EmbeddingDim       int

	DatabaseURL   string
	ChromemPath   string
	ProfileDBPath string
	ImageDir      string

	ModelType        string
	OllamaURL        string
	OllamaModel      string
	OllamaEmbedModel string
	OpenAIAPIURL     string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIEmbedModel string

	SDWebUIURL string

	IngestWorkers   int
	IngestQueueSize int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("HTTP_ADDR", ":8085"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "nerina"),
		AllowAnyOrigin:   false,
		AgentName:        envOrDefault("AGENT_NAME", "Nerina"),
		// Defaults mirror what works well with small local models: a short
		// rendered window keeps prompts tight while the full ring holds more.
		HistoryMaxLen:      20,
		ContextLengthText:  5,
		ContextLengthImage: 2,
		MemoryThreshold:    0.7,
		MemoryRecallCount:  2,
		MemoryQueryTimeout: 350 * time.Millisecond,
		SummaryWordBudget:  60,
		EmbeddingDim:       768,
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		ChromemPath:        envOrDefault("CHROMEM_PATH", "data/memory"),
		ProfileDBPath:      envOrDefault("PROFILE_DB_PATH", "data/profiles.db"),
		ImageDir:           envOrDefault("IMAGE_DIR", "data/images"),
		ModelType:          envOrDefault("MODEL_TYPE", "auto"),
		OllamaURL:          envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:        envOrDefault("OLLAMA_MODEL", "llama3.1"),
		OllamaEmbedModel:   envOrDefault("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		OpenAIAPIURL:       envOrDefault("OPENAI_API_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIEmbedModel:   envOrDefault("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		SDWebUIURL:         stringsTrimSpace("SD_WEBUI_URL"),
		IngestWorkers:      2,
		IngestQueueSize:    64,
		ShutdownTimeout:    15 * time.Second,
		// Chat sessions are cheap; keep them around long enough for a user to
		// come back after a pause without losing the websocket binding.
		SessionInactivityTimeout: 10 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryQueryTimeout, err = durationFromEnv("MEMORY_QUERY_TIMEOUT", cfg.MemoryQueryTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryMaxLen, err = intFromEnv("HISTORY_MAXLEN", cfg.HistoryMaxLen)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextLengthText, err = intFromEnv("CONTEXT_LENGTH_TEXT", cfg.ContextLengthText)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextLengthImage, err = intFromEnv("CONTEXT_LENGTH_IMAGE", cfg.ContextLengthImage)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryThreshold, err = floatFromEnv("MEMORY_THRESHOLD", cfg.MemoryThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRecallCount, err = intFromEnv("MEMORY_RECALL_COUNT", cfg.MemoryRecallCount)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryWordBudget, err = intFromEnv("SUMMARY_WORD_BUDGET", cfg.SummaryWordBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim, err = intFromEnv("EMBEDDING_DIM", cfg.EmbeddingDim)
	if err != nil {
		return Config{}, err
	}
	cfg.IngestWorkers, err = intFromEnv("INGEST_WORKERS", cfg.IngestWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.IngestQueueSize, err = intFromEnv("INGEST_QUEUE_SIZE", cfg.IngestQueueSize)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.AgentName) == "" {
		return Config{}, fmt.Errorf("AGENT_NAME must not be empty")
	}
	if cfg.HistoryMaxLen <= 0 {
		return Config{}, fmt.Errorf("HISTORY_MAXLEN must be positive")
	}
	if cfg.ContextLengthText <= 0 || cfg.ContextLengthText > cfg.HistoryMaxLen {
		return Config{}, fmt.Errorf("CONTEXT_LENGTH_TEXT must be in 1..HISTORY_MAXLEN")
	}
	if cfg.ContextLengthImage <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_LENGTH_IMAGE must be positive")
	}
	if cfg.MemoryThreshold <= 0 || cfg.MemoryThreshold > 2 {
		return Config{}, fmt.Errorf("MEMORY_THRESHOLD must be in (0, 2]")
	}
	if cfg.MemoryRecallCount <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECALL_COUNT must be positive")
	}
	if cfg.SummaryWordBudget <= 0 {
		return Config{}, fmt.Errorf("SUMMARY_WORD_BUDGET must be positive")
	}
	if cfg.EmbeddingDim <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_DIM must be positive")
	}
	if cfg.IngestWorkers <= 0 {
		return Config{}, fmt.Errorf("INGEST_WORKERS must be positive")
	}
	if cfg.IngestQueueSize <= 0 {
		return Config{}, fmt.Errorf("INGEST_QUEUE_SIZE must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ModelType)) {
	case "auto", "ollama", "openai", "mock":
	default:
		return Config{}, fmt.Errorf("MODEL_TYPE must be one of auto, ollama, openai, mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
