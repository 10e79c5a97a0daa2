package provider

import (
	"context"

	"golang.org/x/time/rate"

	"herald/internal/domain"
)

// RateLimited wraps a provider so every Generate call waits for a token.
type RateLimited struct {
	domain.Provider
	limiter *rate.Limiter
}

// NewRateLimited throttles p to ratePerMinute, allowing a burst of a tenth
// of that (at least one).
func NewRateLimited(p domain.Provider, ratePerMinute int) *RateLimited {
	burst := max(ratePerMinute/10, 1)
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Provider.Generate(ctx, req)
}
