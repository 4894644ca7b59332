package app

import (
	"fmt"
	"strings"

	"github.com/antoniostano/nerina/internal/brain"
	"github.com/antoniostano/nerina/internal/config"
)

type modelSetup struct {
	client       brain.Client
	resolvedMode string
	detail       string
}

// resolveModelClient maps MODEL_TYPE onto a concrete client. "auto" prefers
// a local Ollama, falls back to OpenAI when a key is present, and lands on
// the deterministic mock so the service always starts.
func resolveModelClient(cfg config.Config) (modelSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ModelType))
	if mode == "" {
		mode = "auto"
	}

	client, err := brain.NewClient(brain.Config{
		Mode:             mode,
		OllamaURL:        cfg.OllamaURL,
		OllamaModel:      cfg.OllamaModel,
		OllamaEmbedModel: cfg.OllamaEmbedModel,
		OpenAIURL:        cfg.OpenAIAPIURL,
		OpenAIKey:        cfg.OpenAIAPIKey,
		OpenAIModel:      cfg.OpenAIModel,
		OpenAIEmbedModel: cfg.OpenAIEmbedModel,
		EmbeddingDim:     cfg.EmbeddingDim,
	})
	if err != nil {
		return modelSetup{}, fmt.Errorf("model client init failed: %w", err)
	}

	switch mode {
	case "ollama":
		return modelSetup{client: client, resolvedMode: "ollama", detail: cfg.OllamaModel}, nil
	case "openai":
		return modelSetup{client: client, resolvedMode: "openai", detail: cfg.OpenAIModel}, nil
	case "mock":
		return modelSetup{client: client, resolvedMode: "mock", detail: "canned replies"}, nil
	default: // auto
		hasOllama := strings.TrimSpace(cfg.OllamaURL) != ""
		hasKey := strings.TrimSpace(cfg.OpenAIAPIKey) != ""
		switch {
		case hasOllama && hasKey:
			return modelSetup{client: client, resolvedMode: "ollama", detail: fmt.Sprintf("%s (openai fallback)", cfg.OllamaModel)}, nil
		case hasOllama:
			return modelSetup{client: client, resolvedMode: "ollama", detail: fmt.Sprintf("%s (mock fallback)", cfg.OllamaModel)}, nil
		case hasKey:
			return modelSetup{client: client, resolvedMode: "openai", detail: cfg.OpenAIModel}, nil
		default:
			return modelSetup{client: client, resolvedMode: "mock", detail: "no model configured"}, nil
		}
	}
}
