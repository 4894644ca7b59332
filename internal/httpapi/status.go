package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	AgentName        string        `json:"agent_name"`
	ModelMode        string        `json:"model_mode"`
	MemoryBackend    string        `json:"memory_backend"`
	ProfileBackend   string        `json:"profile_backend"`
	DiffusionBackend string        `json:"diffusion_backend"`
	ActiveSessions   int           `json:"active_sessions"`
	Checks           []statusCheck `json:"checks"`
}

// modelMode reports the resolved model provider. The app layer resolves
// "auto" before the server starts, so this never returns "auto" in practice.
func (s *Server) modelMode() string {
	mode := strings.ToLower(strings.TrimSpace(s.cfg.ModelType))
	if mode == "" {
		return "auto"
	}
	return mode
}

func (s *Server) memoryBackend() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "chromem"
}

func (s *Server) profileBackend() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "sqlite"
}

func (s *Server) diffusionBackend() string {
	if strings.TrimSpace(s.cfg.SDWebUIURL) != "" {
		return "sd-webui"
	}
	return "mock"
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	agentName := "Nerina"
	if s.orch != nil {
		agentName = s.orch.AgentName()
	}

	checks := make([]statusCheck, 0, 8)
	checks = append(checks, s.brainChecks()...)
	checks = append(checks, s.memoryChecks()...)
	checks = append(checks, s.profileChecks())
	checks = append(checks, s.diffusionChecks())
	checks = append(checks, s.imageDirCheck())

	active := 0
	if s.sessions != nil {
		active = s.sessions.ActiveCount()
	}

	respondJSON(w, http.StatusOK, statusResponse{
		AgentName:        agentName,
		ModelMode:        s.modelMode(),
		MemoryBackend:    s.memoryBackend(),
		ProfileBackend:   s.profileBackend(),
		DiffusionBackend: s.diffusionBackend(),
		ActiveSessions:   active,
		Checks:           checks,
	})
}

func (s *Server) brainChecks() []statusCheck {
	out := make([]statusCheck, 0, 2)
	switch s.modelMode() {
	case "ollama":
		if err := probeTCP(s.cfg.OllamaURL); err != nil {
			out = append(out, statusCheck{
				ID:     "brain_ollama",
				Status: "error",
				Label:  "Brain (Ollama)",
				Detail: fmt.Sprintf("not reachable (%s)", strings.TrimSpace(s.cfg.OllamaURL)),
				Fix:    "Start Ollama (`ollama serve`) or set MODEL_TYPE=openai.",
			})
		} else {
			out = append(out, statusCheck{
				ID:     "brain_ollama",
				Status: "ok",
				Label:  "Brain (Ollama)",
				Detail: s.cfg.OllamaModel,
			})
		}
		out = append(out, statusCheck{
			ID:     "embeddings",
			Status: "ok",
			Label:  "Embeddings",
			Detail: "ollama/" + s.cfg.OllamaEmbedModel,
		})
	case "openai":
		if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" {
			out = append(out, statusCheck{
				ID:     "brain_openai",
				Status: "error",
				Label:  "Brain (OpenAI)",
				Detail: "OPENAI_API_KEY is not set",
				Fix:    "Set OPENAI_API_KEY or switch to MODEL_TYPE=ollama.",
			})
		} else {
			out = append(out, statusCheck{
				ID:     "brain_openai",
				Status: "ok",
				Label:  "Brain (OpenAI)",
				Detail: s.cfg.OpenAIModel,
			})
		}
		out = append(out, statusCheck{
			ID:     "embeddings",
			Status: "ok",
			Label:  "Embeddings",
			Detail: "openai/" + s.cfg.OpenAIEmbedModel,
		})
	case "mock":
		out = append(out, statusCheck{
			ID:     "brain_mock",
			Status: "warn",
			Label:  "Brain (mock)",
			Detail: "Responses are canned.",
			Fix:    "Set MODEL_TYPE=ollama or provide OPENAI_API_KEY.",
		})
		out = append(out, statusCheck{
			ID:     "embeddings",
			Status: "warn",
			Label:  "Embeddings",
			Detail: "deterministic stub vectors",
		})
	default:
		out = append(out, statusCheck{
			ID:     "brain_mode",
			Status: "warn",
			Label:  "Brain",
			Detail: "unresolved MODEL_TYPE; expected ollama|openai|mock",
		})
	}
	return out
}

func (s *Server) memoryChecks() []statusCheck {
	if s.memoryBackend() == "postgres" {
		if err := probeTCP(s.cfg.DatabaseURL); err != nil {
			return []statusCheck{{
				ID:     "memory_postgres",
				Status: "error",
				Label:  "Semantic memory (Postgres)",
				Detail: "database not reachable",
				Fix:    "Start Postgres or unset DATABASE_URL to use the embedded store.",
			}}
		}
		return []statusCheck{{
			ID:     "memory_postgres",
			Status: "ok",
			Label:  "Semantic memory (Postgres)",
			Detail: "pgvector",
		}}
	}
	return []statusCheck{{
		ID:     "memory_chromem",
		Status: "ok",
		Label:  "Semantic memory (chromem)",
		Detail: fmt.Sprintf("embedded, persisted to %s", s.cfg.ChromemPath),
	}}
}

func (s *Server) profileChecks() statusCheck {
	if s.profileBackend() == "postgres" {
		return statusCheck{
			ID:     "profile_postgres",
			Status: "ok",
			Label:  "User profiles (Postgres)",
			Detail: "shared with semantic memory",
		}
	}
	return statusCheck{
		ID:     "profile_sqlite",
		Status: "ok",
		Label:  "User profiles (SQLite)",
		Detail: s.cfg.ProfileDBPath,
	}
}

func (s *Server) diffusionChecks() statusCheck {
	if s.diffusionBackend() == "mock" {
		return statusCheck{
			ID:     "diffusion_mock",
			Status: "warn",
			Label:  "Image generation (mock)",
			Detail: "Generated images are placeholders.",
			Fix:    "Run the Stable Diffusion WebUI with --api and set SD_WEBUI_URL.",
		}
	}
	if err := probeTCP(s.cfg.SDWebUIURL); err != nil {
		return statusCheck{
			ID:     "diffusion_webui",
			Status: "error",
			Label:  "Image generation (SD WebUI)",
			Detail: fmt.Sprintf("not reachable (%s)", strings.TrimSpace(s.cfg.SDWebUIURL)),
			Fix:    "Start the WebUI with --api, or unset SD_WEBUI_URL.",
		}
	}
	return statusCheck{
		ID:     "diffusion_webui",
		Status: "ok",
		Label:  "Image generation (SD WebUI)",
		Detail: "reachable",
	}
}

func (s *Server) imageDirCheck() statusCheck {
	dir := strings.TrimSpace(s.cfg.ImageDir)
	if s.images != nil {
		dir = s.images.Dir()
	}
	if dir == "" {
		return statusCheck{
			ID:     "image_dir",
			Status: "warn",
			Label:  "Image directory",
			Detail: "IMAGE_DIR is empty",
		}
	}
	if _, err := os.Stat(dir); err != nil {
		return statusCheck{
			ID:     "image_dir",
			Status: "warn",
			Label:  "Image directory",
			Detail: "missing; created on first save",
		}
	}
	return statusCheck{
		ID:     "image_dir",
		Status: "ok",
		Label:  "Image directory",
		Detail: dir,
	}
}

// probeTCP dials the host behind a URL with a short timeout. It answers
// "is anything listening there", not "is the service healthy".
func probeTCP(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	host := strings.TrimSpace(u.Host)
	if host == "" {
		return fmt.Errorf("host missing")
	}
	addr := host
	if !strings.Contains(host, ":") {
		port := "80"
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		case "postgres", "postgresql":
			port = "5432"
		}
		addr = net.JoinHostPort(host, port)
	}
	c, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}
