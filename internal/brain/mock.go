package brain

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// MockClient provides deterministic local replies and embeddings when no
// model backend is reachable.
type MockClient struct {
	embeddingDim int
}

func NewMockClient(embeddingDim int) *MockClient {
	if embeddingDim <= 0 {
		embeddingDim = 768
	}
	return &MockClient{embeddingDim: embeddingDim}
}

func (c *MockClient) StreamReply(ctx context.Context, req GenerateRequest, onDelta DeltaHandler) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Reply{}, err
		}
	}
	return Reply{Text: text}, nil
}

func buildMockReply(req GenerateRequest) string {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", last)
}

// Embed maps text to a stable unit vector. Identical inputs always produce
// identical vectors, which is enough for exact-recall flows in dev mode.
func (c *MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}

	vec := make([]float32, c.embeddingDim)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence cheap and reproducible.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
