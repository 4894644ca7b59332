package brain

import (
	"context"
	"errors"
	"fmt"
)

// FallbackClient attempts a primary client first and falls back on error.
// Context cancellation is never retried against the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
}

func NewFallbackClient(primary, fallback Client) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

func (c *FallbackClient) StreamReply(ctx context.Context, req GenerateRequest, onDelta DeltaHandler) (Reply, error) {
	emitted := false
	var wrapped DeltaHandler
	if onDelta != nil {
		wrapped = func(delta string) error {
			emitted = true
			return onDelta(delta)
		}
	}
	reply, err := c.primary.StreamReply(ctx, req, wrapped)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Reply{}, err
	}
	// Once the primary has streamed visible text, retrying elsewhere would
	// duplicate it on the client.
	if emitted || c.fallback == nil {
		return Reply{}, err
	}
	reply, fallbackErr := c.fallback.StreamReply(ctx, req, onDelta)
	if fallbackErr != nil {
		return Reply{}, fmt.Errorf("primary model error: %w; fallback model error: %v", err, fallbackErr)
	}
	return reply, nil
}

// Embed never falls back: vectors from different embedding models live in
// different spaces, and mixing them in one index corrupts recall distances.
func (c *FallbackClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.primary.Embed(ctx, text)
}
