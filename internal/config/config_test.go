package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HTTP_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ModelType != "auto" {
		t.Fatalf("ModelType = %q, want %q", cfg.ModelType, "auto")
	}
	if cfg.HistoryMaxLen != 20 {
		t.Fatalf("HistoryMaxLen = %d, want 20", cfg.HistoryMaxLen)
	}
	if cfg.MemoryThreshold != 0.7 {
		t.Fatalf("MemoryThreshold = %v, want 0.7", cfg.MemoryThreshold)
	}
	if cfg.MemoryRecallCount != 2 {
		t.Fatalf("MemoryRecallCount = %d, want 2", cfg.MemoryRecallCount)
	}
	if cfg.EmbeddingDim != 768 {
		t.Fatalf("EmbeddingDim = %d, want 768", cfg.EmbeddingDim)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
	if cfg.SDWebUIURL != "" {
		t.Fatalf("SDWebUIURL = %q, want empty default", cfg.SDWebUIURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("HISTORY_MAXLEN", "8")
	t.Setenv("CONTEXT_LENGTH_TEXT", "3")
	t.Setenv("MEMORY_THRESHOLD", "0.55")
	t.Setenv("MODEL_TYPE", "ollama")
	t.Setenv("OLLAMA_URL", "http://localhost:7777")
	t.Setenv("MEMORY_QUERY_TIMEOUT", "750ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HistoryMaxLen != 8 {
		t.Fatalf("HistoryMaxLen = %d, want 8", cfg.HistoryMaxLen)
	}
	if cfg.ContextLengthText != 3 {
		t.Fatalf("ContextLengthText = %d, want 3", cfg.ContextLengthText)
	}
	if cfg.MemoryThreshold != 0.55 {
		t.Fatalf("MemoryThreshold = %v, want 0.55", cfg.MemoryThreshold)
	}
	if cfg.ModelType != "ollama" {
		t.Fatalf("ModelType = %q, want %q", cfg.ModelType, "ollama")
	}
	if cfg.OllamaURL != "http://localhost:7777" {
		t.Fatalf("OllamaURL = %q, want explicit value", cfg.OllamaURL)
	}
	if got, want := cfg.MemoryQueryTimeout.Milliseconds(), int64(750); got != want {
		t.Fatalf("MemoryQueryTimeout = %dms, want %dms", got, want)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MODEL_TYPE", "carrier-pigeon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with unknown MODEL_TYPE: expected error, got nil")
	}

	setCoreEnvEmpty(t)
	t.Setenv("HISTORY_MAXLEN", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with zero HISTORY_MAXLEN: expected error, got nil")
	}

	setCoreEnvEmpty(t)
	t.Setenv("HISTORY_MAXLEN", "4")
	t.Setenv("CONTEXT_LENGTH_TEXT", "9")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with window larger than ring: expected error, got nil")
	}

	setCoreEnvEmpty(t)
	t.Setenv("MEMORY_THRESHOLD", "2.5")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with out-of-range MEMORY_THRESHOLD: expected error, got nil")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"AGENT_NAME",
		"ALLOW_ANY_ORIGIN",
		"SESSION_INACTIVITY_TIMEOUT",
		"HISTORY_MAXLEN",
		"CONTEXT_LENGTH_TEXT",
		"CONTEXT_LENGTH_IMAGE",
		"MEMORY_THRESHOLD",
		"MEMORY_RECALL_COUNT",
		"MEMORY_QUERY_TIMEOUT",
		"SUMMARY_WORD_BUDGET",
		"EMBEDDING_DIM",
		"DATABASE_URL",
		"CHROMEM_PATH",
		"PROFILE_DB_PATH",
		"IMAGE_DIR",
		"MODEL_TYPE",
		"OLLAMA_URL",
		"OLLAMA_MODEL",
		"OLLAMA_EMBED_MODEL",
		"OPENAI_API_URL",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"SD_WEBUI_URL",
		"INGEST_WORKERS",
		"INGEST_QUEUE_SIZE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
