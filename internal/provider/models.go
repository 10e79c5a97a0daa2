package provider

import (
	"time"

	"herald/internal/domain"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	defaultMaxTokens   = 1024
)

// Models maps a tier to a concrete model name.
type Models struct {
	Small string
	Large string
}

func (m Models) pick(tier domain.ModelTier) string {
	if tier == domain.TierSmall && m.Small != "" {
		return m.Small
	}
	if m.Large != "" {
		return m.Large
	}
	return m.Small
}

func (m Models) withDefaults(small, large string) Models {
	if m.Small == "" {
		m.Small = small
	}
	if m.Large == "" {
		m.Large = large
	}
	return m
}

func maxTokens(req domain.GenerateRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
