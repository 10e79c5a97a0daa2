package provider

import (
	"context"
	"log/slog"
	"testing"

	"herald/internal/config"
	"herald/internal/domain"
)

func TestFactory_GetCachesProvider(t *testing.T) {
	cfg := config.Defaults()
	f := NewFactory(cfg, testLogger())

	p1, err := f.Get(context.Background(), "")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if p1.Name() != "ollama" {
		t.Fatalf("expected ollama, got %q", p1.Name())
	}
	p2, _ := f.Get(context.Background(), "ollama")
	if p1 != p2 {
		t.Fatal("expected cached instance")
	}
}

func TestFactory_UnknownAndDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["claude"] = config.ProviderConfig{Enabled: false, APIKey: "k"}
	f := NewFactory(cfg, testLogger())

	if _, err := f.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := f.Get(context.Background(), "claude"); err == nil {
		t.Fatal("expected error for disabled provider")
	}
}

func TestFactory_OpenAICompatibleFallback(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["groq"] = config.ProviderConfig{Enabled: true, APIBase: "https://api.groq.com/openai/v1", APIKey: "k"}
	f := NewFactory(cfg, testLogger())

	p, err := f.Get(context.Background(), "groq")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := p.(*OpenAI); !ok || p.Name() != "groq" {
		t.Fatalf("expected OpenAI-compatible provider named groq, got %T %q", p, p.Name())
	}
}

func TestFactory_RateLimitWrapsProvider(t *testing.T) {
	cfg := config.Defaults()
	pc := cfg.Providers["ollama"]
	pc.RateLimitPerMin = 30
	cfg.Providers["ollama"] = pc
	f := NewFactory(cfg, testLogger())

	p, err := f.Get(context.Background(), "ollama")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*RateLimited); !ok {
		t.Fatalf("expected rate-limited wrapper, got %T", p)
	}
}

func TestFactory_GeneratorBuildsFailoverChain(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["claude"] = config.ProviderConfig{Enabled: true, APIKey: "k"}
	cfg.Providers["off"] = config.ProviderConfig{Enabled: false}
	cfg.General.FailoverChain = []string{"claude", "off", "ollama"}
	f := NewFactory(cfg, testLogger())

	g, err := f.Generator(context.Background())
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	if g.Name() != "failover(claude→ollama)" {
		t.Fatalf("unexpected chain %q", g.Name())
	}
}

func TestFactory_GeneratorWithoutChain(t *testing.T) {
	f := NewFactory(config.Defaults(), testLogger())
	g, err := f.Generator(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g.Name() != "ollama" {
		t.Fatalf("expected default provider, got %q", g.Name())
	}
}

func TestFactory_RegisterConstructor(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers["stub"] = config.ProviderConfig{Enabled: true}
	f := NewFactory(cfg, testLogger())
	stub := &mockProvider{name: "stub", text: "ok"}
	f.RegisterConstructor("stub", func(context.Context, string, config.ProviderConfig, *slog.Logger) (domain.Provider, error) {
		return stub, nil
	})

	p, err := f.Get(context.Background(), "stub")
	if err != nil || p != domain.Provider(stub) {
		t.Fatalf("expected registered stub, got %v, %v", p, err)
	}
}

func TestFactory_DescriberNeedsGemini(t *testing.T) {
	f := NewFactory(config.Defaults(), testLogger())
	if d := f.Describer(context.Background()); d != nil {
		t.Fatalf("expected no describer without gemini, got %T", d)
	}
}
