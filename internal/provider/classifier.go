package provider

import (
	"context"
	"log/slog"

	"herald/internal/domain"
)

// Classifier turns a generator into a RESPOND/IGNORE/STOP classifier.
type Classifier struct {
	gen    domain.Generator
	logger *slog.Logger
}

func NewClassifier(gen domain.Generator, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify generates with a short token budget and parses the first
// decision keyword. Output with no keyword maps to IGNORE.
func (c *Classifier) Classify(ctx context.Context, prompt string, tier domain.ModelTier) (domain.Decision, error) {
	raw, err := c.gen.Generate(ctx, domain.GenerateRequest{Prompt: prompt, Tier: tier, MaxTokens: 16})
	if err != nil {
		return domain.DecisionIgnore, err
	}
	d, ok := domain.ParseDecision(raw)
	if !ok {
		c.logger.Debug("classifier output had no decision", "raw", raw)
	}
	return d, nil
}
