package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateSendsTxt2ImgRequest(t *testing.T) {
	want := []byte("fake-png-bytes")
	var gotPath string
	var gotBody webuiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString(want)},
		})
	}))
	defer srv.Close()

	r := NewWebUIRenderer(srv.URL)
	img, err := r.Generate(context.Background(), "a cat in a hat")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !bytes.Equal(img, want) {
		t.Fatalf("Generate() = %q, want %q", img, want)
	}
	if gotPath != "/sdapi/v1/txt2img" {
		t.Fatalf("request path = %q, want %q", gotPath, "/sdapi/v1/txt2img")
	}
	if gotBody.Prompt != "a cat in a hat" {
		t.Fatalf("prompt = %q, want %q", gotBody.Prompt, "a cat in a hat")
	}
	if gotBody.Steps != renderSteps || gotBody.CFGScale != renderCFGScale {
		t.Fatalf("steps/cfg = %d/%v, want %d/%v", gotBody.Steps, gotBody.CFGScale, renderSteps, renderCFGScale)
	}
	if gotBody.Width != renderWidth || gotBody.Height != renderHeight {
		t.Fatalf("size = %dx%d, want %dx%d", gotBody.Width, gotBody.Height, renderWidth, renderHeight)
	}
	if len(gotBody.InitImages) != 0 {
		t.Fatalf("txt2img carried %d init images, want none", len(gotBody.InitImages))
	}
}

func TestEditSendsSourceImage(t *testing.T) {
	source := []byte{0x89, 0x50, 0x4e, 0x47, 0x01, 0x02}
	var gotPath string
	var gotBody webuiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString([]byte("edited"))},
		})
	}))
	defer srv.Close()

	r := NewWebUIRenderer(srv.URL)
	img, err := r.Edit(context.Background(), "make it blue", source)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if string(img) != "edited" {
		t.Fatalf("Edit() = %q, want %q", img, "edited")
	}
	if gotPath != "/sdapi/v1/img2img" {
		t.Fatalf("request path = %q, want %q", gotPath, "/sdapi/v1/img2img")
	}
	if len(gotBody.InitImages) != 1 {
		t.Fatalf("img2img carried %d init images, want 1", len(gotBody.InitImages))
	}
	decoded, err := base64.StdEncoding.DecodeString(gotBody.InitImages[0])
	if err != nil {
		t.Fatalf("decode init image: %v", err)
	}
	if !bytes.Equal(decoded, source) {
		t.Fatalf("init image = %v, want %v", decoded, source)
	}
}

func TestRenderRetriesTransientStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"images": []string{base64.StdEncoding.EncodeToString([]byte("ok"))},
		})
	}))
	defer srv.Close()

	r := NewWebUIRenderer(srv.URL)
	img, err := r.Generate(context.Background(), "retry me")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(img) != "ok" {
		t.Fatalf("Generate() = %q, want %q", img, "ok")
	}
	if calls != 2 {
		t.Fatalf("backend calls = %d, want 2", calls)
	}
}

func TestRenderDoesNotRetryClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	r := NewWebUIRenderer(srv.URL)
	if _, err := r.Generate(context.Background(), "bad"); err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
	if calls != 1 {
		t.Fatalf("backend calls = %d, want 1", calls)
	}
}

func TestMockRendererReturnsPNG(t *testing.T) {
	m := NewMockRenderer()

	img, err := m.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !bytes.HasPrefix(img, []byte{0x89, 0x50, 0x4e, 0x47}) {
		t.Fatalf("Generate() does not start with a PNG signature: %v", img[:4])
	}

	edited, err := m.Edit(context.Background(), "anything", []byte("source"))
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !bytes.Equal(edited, img) {
		t.Fatal("Edit() and Generate() should return the same placeholder")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Generate(ctx, "anything"); err == nil {
		t.Fatal("Generate() with cancelled context: error = nil, want error")
	}
}

func TestNewRendererPicksBackend(t *testing.T) {
	if _, ok := NewRenderer("").(*MockRenderer); !ok {
		t.Fatalf("NewRenderer(\"\") = %T, want *MockRenderer", NewRenderer(""))
	}
	if _, ok := NewRenderer("http://localhost:7860").(*WebUIRenderer); !ok {
		t.Fatalf("NewRenderer(url) = %T, want *WebUIRenderer", NewRenderer("http://localhost:7860"))
	}
}
