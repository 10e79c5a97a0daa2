// Package reply generates, cleans and validates agent replies.
package reply

import (
	"context"
	"log/slog"
	"time"

	"herald/internal/domain"
	"herald/internal/metrics"
)

const logTypeResponse = "response"

// Request is one generation turn.
type Request struct {
	Trigger *domain.MemoryRecord // nil for autonomous posts
	State   *domain.ConversationState
	Prompt  string
	Tier    domain.ModelTier
	// Source is stamped on the returned content (e.g. "telegram").
	Source string
}

// PipelineConfig holds the pipeline's collaborators.
type PipelineConfig struct {
	Generator domain.Generator
	Store     domain.MemoryStore
	Sanitizer *Sanitizer
	Validator *Validator
	Logger    *slog.Logger
}

// Pipeline runs generate → sanitize → validate → audit log.
type Pipeline struct {
	gen       domain.Generator
	store     domain.MemoryStore
	sanitizer *Sanitizer
	validator *Validator
	logger    *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = NewSanitizer()
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		gen:       cfg.Generator,
		store:     cfg.Store,
		sanitizer: cfg.Sanitizer,
		validator: cfg.Validator,
		logger:    cfg.Logger,
	}
}

// Generate returns validated content or nil. Failures are logged, never
// returned; the caller decides whether to skip the turn.
func (p *Pipeline) Generate(ctx context.Context, req Request) *domain.Content {
	if req.Tier == "" {
		req.Tier = domain.TierLarge
	}
	roomID, userID := "", ""
	if req.State != nil {
		roomID = req.State.RoomID
	}
	if req.Trigger != nil {
		userID = req.Trigger.UserID
	}

	start := time.Now()
	raw, err := p.gen.Generate(ctx, domain.GenerateRequest{Prompt: req.Prompt, Tier: req.Tier})
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GenerationFailures.Inc()
		p.logger.Error("generation failed", "room", roomID, "tier", req.Tier, "err", err)
		return nil
	}

	content := parseContent(raw)
	if content.Text == "" {
		metrics.GenerationFailures.Inc()
		p.logger.Error("no response generated", "room", roomID, "tier", req.Tier)
		return nil
	}
	content.Source = req.Source

	content.Text = p.sanitizer.Sanitize(content.Text)
	if err := p.validator.Validate(content.Text, req.State.AgentReplies(recentReplyWindow)); err != nil {
		metrics.RepliesRejected.Inc()
		p.logger.Warn("response validation failed", "room", roomID, "reason", err)
		return nil
	}

	if p.store != nil {
		entry := domain.LogEntry{
			Type:   logTypeResponse,
			UserID: userID,
			RoomID: roomID,
			Body: map[string]any{
				"message":  req.Trigger,
				"context":  req.Prompt,
				"response": content,
			},
			CreatedAt: time.Now(),
		}
		if err := p.store.AppendLog(ctx, entry); err != nil {
			p.logger.Warn("failed to persist response log", "room", roomID, "err", err)
		}
	}
	return &content
}
