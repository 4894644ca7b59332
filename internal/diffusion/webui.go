package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/nerina/internal/reliability"
)

// WebUIRenderer talks to a Stable Diffusion WebUI (AUTOMATIC1111) instance
// over its sdapi endpoints. Transient statuses are retried with backoff.
type WebUIRenderer struct {
	baseURL string
	client  *http.Client
}

const (
	renderSteps    = 30
	renderCFGScale = 7.5
	renderWidth    = 512
	renderHeight   = 512

	renderRetries      = 2
	renderBackoffBase  = 500 * time.Millisecond
	renderBackoffLimit = 4 * time.Second
)

func NewWebUIRenderer(baseURL string) *WebUIRenderer {
	return &WebUIRenderer{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type webuiRequest struct {
	Prompt     string   `json:"prompt"`
	Steps      int      `json:"steps"`
	CFGScale   float64  `json:"cfg_scale"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	InitImages []string `json:"init_images,omitempty"`
}

type webuiResponse struct {
	Images []string `json:"images"`
}

func (r *WebUIRenderer) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return r.render(ctx, "/sdapi/v1/txt2img", webuiRequest{
		Prompt:   prompt,
		Steps:    renderSteps,
		CFGScale: renderCFGScale,
		Width:    renderWidth,
		Height:   renderHeight,
	})
}

func (r *WebUIRenderer) Edit(ctx context.Context, prompt string, source []byte) ([]byte, error) {
	return r.render(ctx, "/sdapi/v1/img2img", webuiRequest{
		Prompt:     prompt,
		Steps:      renderSteps,
		CFGScale:   renderCFGScale,
		Width:      renderWidth,
		Height:     renderHeight,
		InitImages: []string{base64.StdEncoding.EncodeToString(source)},
	})
}

func (r *WebUIRenderer) render(ctx context.Context, path string, req webuiRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal render request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= renderRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, renderBackoffBase, renderBackoffLimit)):
			}
		}

		img, retryable, err := r.renderOnce(ctx, path, payload)
		if err == nil {
			return img, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *WebUIRenderer) renderOnce(ctx context.Context, path string, payload []byte) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("create render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("send render request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fmt.Errorf("webui status %d: %s", res.StatusCode, string(body))
		return nil, reliability.IsRetryableHTTPStatus(res.StatusCode), err
	}

	var out webuiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode render response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, false, fmt.Errorf("webui returned no images")
	}
	img, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, false, fmt.Errorf("decode rendered image: %w", err)
	}
	return img, false, nil
}
