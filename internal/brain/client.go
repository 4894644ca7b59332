package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	// Images holds base64-encoded payloads for vision-capable models.
	Images []string `json:"images,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateRequest carries one assembled prompt.
type GenerateRequest struct {
	System   string
	Messages []Message
}

// Reply is the final response after streaming deltas.
type Reply struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Client is the language-model capability: streamed reply generation plus
// text embeddings.
type Client interface {
	StreamReply(ctx context.Context, req GenerateRequest, onDelta DeltaHandler) (Reply, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config controls client construction.
type Config struct {
	Mode             string
	OllamaURL        string
	OllamaModel      string
	OllamaEmbedModel string
	OpenAIURL        string
	OpenAIKey        string
	OpenAIModel      string
	OpenAIEmbedModel string
	EmbeddingDim     int
}

// NewClient builds a client for the configured mode. "auto" prefers a local
// Ollama when an URL is set, falling back to OpenAI when a key is present,
// and finally to the deterministic mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoClient(cfg), nil
	case "ollama":
		if strings.TrimSpace(cfg.OllamaURL) == "" {
			return nil, errors.New("ollama url is required for ollama mode")
		}
		return NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaEmbedModel), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIClient(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEmbedModel), nil
	case "mock":
		return NewMockClient(cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unsupported model mode %q", cfg.Mode)
	}
}

func newAutoClient(cfg Config) Client {
	var secondary Client
	if strings.TrimSpace(cfg.OpenAIKey) != "" {
		secondary = NewOpenAIClient(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIEmbedModel)
	} else {
		secondary = NewMockClient(cfg.EmbeddingDim)
	}

	if strings.TrimSpace(cfg.OllamaURL) != "" {
		return NewFallbackClient(NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.OllamaEmbedModel), secondary)
	}
	return secondary
}
