package domain

import (
	"context"
	"strings"
)

// ModelTier hints which model class a generation should use.
type ModelTier string

const (
	TierSmall ModelTier = "small" // classification, short posts
	TierLarge ModelTier = "large" // full replies
)

type GenerateRequest struct {
	Prompt      string
	Tier        ModelTier
	MaxTokens   int
	Temperature float64
}

// Generator is the text generation service.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Provider is a named, health-checkable generation backend.
type Provider interface {
	Generator
	Name() string
	Healthy(ctx context.Context) error
}

// Decision is the outcome of the respond policy.
type Decision int

const (
	DecisionIgnore Decision = iota
	DecisionRespond
	DecisionStop
)

func (d Decision) String() string {
	switch d {
	case DecisionRespond:
		return "RESPOND"
	case DecisionStop:
		return "STOP"
	default:
		return "IGNORE"
	}
}

var decisionWords = []struct {
	word string
	d    Decision
}{
	{"RESPOND", DecisionRespond},
	{"IGNORE", DecisionIgnore},
	{"STOP", DecisionStop},
}

// ParseDecision maps raw classifier output to a Decision. The earliest
// keyword in the text wins; ok is false when no keyword is present.
func ParseDecision(raw string) (d Decision, ok bool) {
	upper := strings.ToUpper(raw)
	best := -1
	for _, w := range decisionWords {
		idx := strings.Index(upper, w.word)
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			d = w.d
		}
	}
	if best < 0 {
		return DecisionIgnore, false
	}
	return d, true
}

// Classifier maps a decision prompt to a Decision.
type Classifier interface {
	Classify(ctx context.Context, prompt string, tier ModelTier) (Decision, error)
}

// ImageDescription is the result of describing an image.
type ImageDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ImageDescriber describes the image at a URL.
type ImageDescriber interface {
	Describe(ctx context.Context, url string) (ImageDescription, error)
}
