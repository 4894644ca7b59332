package diffusion

import (
	"context"
	"strings"
)

// Renderer is the image capability: text-to-image generation and
// image-to-image editing. Both return raw PNG bytes.
type Renderer interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	Edit(ctx context.Context, prompt string, source []byte) ([]byte, error)
}

// NewRenderer returns a Stable Diffusion WebUI client when an URL is
// configured, otherwise the deterministic mock.
func NewRenderer(webuiURL string) Renderer {
	if strings.TrimSpace(webuiURL) == "" {
		return NewMockRenderer()
	}
	return NewWebUIRenderer(webuiURL)
}
