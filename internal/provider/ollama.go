package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"herald/internal/domain"
	"herald/internal/httpx"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultSmall = "llama3.2:3b"
	ollamaDefaultLarge = "llama3.1:8b"
)

// Ollama implements domain.Provider for a local or hosted Ollama server.
type Ollama struct {
	apiBase string
	models  Models
	client  *http.Client
	logger  *slog.Logger
}

type OllamaConfig struct {
	APIBase string
	Models  Models
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		models:  cfg.Models.withDefaults(ollamaDefaultSmall, ollamaDefaultLarge),
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	if err := getOK(ctx, o.client, o.apiBase+"/api/tags", nil); err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	return nil
}

// ollamaRequest matches the Ollama /api/generate request body.
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

func (o *Ollama) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	body := ollamaRequest{
		Model:   o.models.pick(req.Tier),
		Prompt:  req.Prompt,
		Options: map[string]any{"num_predict": maxTokens(req)},
	}
	if req.Temperature > 0 {
		body.Options["temperature"] = req.Temperature
	}

	var out ollamaResponse
	if err := postJSON(ctx, o.client, o.apiBase+"/api/generate", nil, body, &out, o.logger); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	o.logger.Debug("ollama generate", "model", body.Model, "done_reason", out.DoneReason)
	return out.Response, nil
}
