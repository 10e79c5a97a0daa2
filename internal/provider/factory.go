package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"herald/internal/config"
	"herald/internal/domain"
)

// ProviderConstructor creates a provider from a config entry.
type ProviderConstructor func(ctx context.Context, name string, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error)

// Factory creates and caches model providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func modelsOf(pc config.ProviderConfig) Models {
	return Models{Small: pc.SmallModel, Large: pc.LargeModel}
}

func (f *Factory) registerDefaults() {
	f.constructors["ollama"] = func(_ context.Context, _ string, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, Models: modelsOf(pc), Logger: logger}), nil
	}
	f.constructors["openai"] = func(_ context.Context, name string, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewOpenAI(OpenAIConfig{Name: name, APIKey: pc.APIKey, APIBase: pc.APIBase, Models: modelsOf(pc), Logger: logger}), nil
	}
	f.constructors["claude"] = func(_ context.Context, _ string, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Models: modelsOf(pc), Logger: logger}), nil
	}
	f.constructors["gemini"] = func(ctx context.Context, _ string, pc config.ProviderConfig, logger *slog.Logger) (domain.Provider, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Models: modelsOf(pc), Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is empty.
// Created providers are cached so the same instance is reused across calls.
func (f *Factory) Get(ctx context.Context, name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	var (
		p   domain.Provider
		err error
	)
	if ctor, found := f.constructors[name]; found {
		p, err = ctor(ctx, name, pc, f.logger)
	} else if pc.APIBase != "" {
		// Unknown names are treated as OpenAI-compatible endpoints.
		p, err = f.constructors["openai"](ctx, name, pc, f.logger)
	} else {
		return nil, fmt.Errorf("provider %s: no constructor registered and no API base configured", name)
	}
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}

	if pc.RateLimitPerMin > 0 {
		p = NewRateLimited(p, pc.RateLimitPerMin)
	}
	f.cache[name] = p
	return p, nil
}

// Generator returns the provider used for generation: the failover chain
// when one is configured, otherwise the default provider. Chain members
// that fail to build are skipped with a warning.
func (f *Factory) Generator(ctx context.Context) (domain.Provider, error) {
	chain := f.cfg.General.FailoverChain
	if len(chain) == 0 {
		return f.Get(ctx, "")
	}

	providers := make([]domain.Provider, 0, len(chain))
	for _, name := range chain {
		p, err := f.Get(ctx, name)
		if err != nil {
			f.logger.Warn("skipping provider in failover chain", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable provider in failover chain")
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	return NewFailoverProvider(providers, f.logger), nil
}

// Describer returns an image describer when a Gemini provider is enabled.
func (f *Factory) Describer(ctx context.Context) domain.ImageDescriber {
	if pc, ok := f.cfg.Providers["gemini"]; !ok || !pc.Enabled {
		return nil
	}
	p, err := f.Get(ctx, "gemini")
	if err != nil {
		f.logger.Warn("image description disabled", "error", err)
		return nil
	}
	if rl, ok := p.(*RateLimited); ok {
		p = rl.Provider
	}
	d, ok := p.(domain.ImageDescriber)
	if !ok {
		return nil
	}
	return d
}

// HealthyProvider returns the first configured provider that passes a health
// check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	for name := range f.cfg.Providers {
		p, err := f.Get(ctx, name)
		if err != nil || p == nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
