// Package policy decides whether the agent answers an inbound message.
package policy

import (
	"context"
	"log/slog"
	"strings"

	"herald/internal/domain"
	"herald/internal/prompt"
)

// Config configures a Policy.
type Config struct {
	// Handle is the agent's mention handle without the leading "@".
	Handle     string
	Classifier domain.Classifier
	// Template renders the classifier prompt; defaults to prompt.ShouldRespondTemplate.
	Template string
	Tier     domain.ModelTier
	Logger   *slog.Logger
}

// Policy applies deterministic rules first and falls back to a classifier.
type Policy struct {
	mention    string
	classifier domain.Classifier
	template   string
	tier       domain.ModelTier
	logger     *slog.Logger
}

func New(cfg Config) *Policy {
	if cfg.Template == "" {
		cfg.Template = prompt.ShouldRespondTemplate
	}
	if cfg.Tier == "" {
		cfg.Tier = domain.TierSmall
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mention := ""
	if h := strings.TrimPrefix(strings.TrimSpace(cfg.Handle), "@"); h != "" {
		mention = "@" + strings.ToLower(h)
	}
	return &Policy{
		mention:    mention,
		classifier: cfg.Classifier,
		template:   cfg.Template,
		tier:       cfg.Tier,
		logger:     cfg.Logger,
	}
}

// Decide returns RESPOND, IGNORE or STOP for msg. Rules, first match wins:
// explicit mention, direct chat, attachment without text, classifier.
// Classifier failures degrade to IGNORE.
func (p *Policy) Decide(ctx context.Context, msg domain.InboundMessage, state *domain.ConversationState) domain.Decision {
	body := msg.Body()

	if p.mention != "" && strings.Contains(strings.ToLower(body), p.mention) {
		return domain.DecisionRespond
	}
	if msg.ChatType == domain.ChatDirect {
		return domain.DecisionRespond
	}
	if msg.Attachment != nil && strings.TrimSpace(body) == "" {
		return domain.DecisionIgnore
	}
	if strings.TrimSpace(body) == "" || p.classifier == nil {
		return domain.DecisionIgnore
	}

	d, err := p.classifier.Classify(ctx, prompt.Compose(p.template, state), p.tier)
	if err != nil {
		p.logger.Warn("respond classification failed", "chat", msg.ChatID, "err", err)
		return domain.DecisionIgnore
	}
	return d
}
