package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"herald/internal/domain"
	"herald/internal/httpx"
)

const (
	geminiDefaultSmall = "gemini-2.5-flash-lite"
	geminiDefaultLarge = "gemini-2.5-flash"
	maxImageBytes      = 10 << 20
)

const describePrompt = `Describe this image for someone who cannot see it.
Respond with JSON only: {"title": "<short title>", "description": "<one or two sentences>"}`

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini implements domain.Provider and domain.ImageDescriber on the
// Gemini API.
type Gemini struct {
	apiKey   string
	models   Models
	generate generateFunc
	http     *http.Client
	logger   *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Models  Models
	Logger  *slog.Logger
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.APIBase != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.APIBase}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return newGemini(cfg, client.Models.GenerateContent, httpx.NewClient(defaultHTTPTimeout)), nil
}

func newGemini(cfg GeminiConfig, generate generateFunc, client *http.Client) *Gemini {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		apiKey:   cfg.APIKey,
		models:   cfg.Models.withDefaults(geminiDefaultSmall, geminiDefaultLarge),
		generate: generate,
		http:     client,
		logger:   cfg.Logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Healthy(ctx context.Context) error {
	if g.apiKey == "" {
		return fmt.Errorf("gemini: no API key configured")
	}
	return nil
}

func (g *Gemini) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens(req))}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := g.generate(ctx, g.models.pick(req.Tier), contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return resp.Text(), nil
}

// Describe downloads the image at url and asks the small model for a
// title and description.
func (g *Gemini) Describe(ctx context.Context, url string) (domain.ImageDescription, error) {
	data, mimeType, err := g.fetchImage(ctx, url)
	if err != nil {
		return domain.ImageDescription{}, err
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(describePrompt),
		genai.NewPartFromBytes(data, mimeType),
	}, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}

	resp, err := g.generate(ctx, g.models.pick(domain.TierSmall), contents, cfg)
	if err != nil {
		return domain.ImageDescription{}, fmt.Errorf("gemini describe: %w", err)
	}
	return parseDescription(resp.Text()), nil
}

func (g *Gemini) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("not an image: %s", mimeType)
	}
	return data, mimeType, nil
}

// parseDescription reads the JSON answer, or uses the whole text as the
// description when the model ignored the format.
func parseDescription(raw string) domain.ImageDescription {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var d domain.ImageDescription
	if err := json.Unmarshal([]byte(raw), &d); err == nil && (d.Title != "" || d.Description != "") {
		return d
	}
	return domain.ImageDescription{Description: raw}
}
