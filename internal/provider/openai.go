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

// OpenAI implements domain.Provider for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	name    string
	apiKey  string
	apiBase string
	models  Models
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	// Name overrides "openai" for compatible third-party endpoints.
	Name    string
	APIKey  string
	APIBase string
	Models  Models
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		models:  cfg.Models.withDefaults("gpt-4o-mini", "gpt-4o"),
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if err := getOK(ctx, o.client, o.apiBase+"/models", o.headers()); err != nil {
		return fmt.Errorf("%s not reachable: %w", o.name, err)
	}
	return nil
}

func (o *OpenAI) headers() map[string]string {
	if o.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.apiKey}
}

type openaiRequest struct {
	Model       string      `json:"model"`
	Messages    []openaiMsg `json:"messages"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type openaiMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMsg `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	body := openaiRequest{
		Model:     o.models.pick(req.Tier),
		Messages:  []openaiMsg{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens(req),
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}

	var out openaiResponse
	if err := postJSON(ctx, o.client, o.apiBase+"/chat/completions", o.headers(), body, &out, o.logger); err != nil {
		return "", fmt.Errorf("%s: %w", o.name, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", o.name)
	}
	return out.Choices[0].Message.Content, nil
}
