package provider

import (
	"context"
	"testing"
	"time"

	"herald/internal/domain"
)

func TestNewRateLimited_Burst(t *testing.T) {
	tests := []struct {
		perMin int
		burst  int
	}{
		{1, 1},
		{9, 1},
		{60, 6},
		{600, 60},
	}
	for _, tt := range tests {
		rl := NewRateLimited(&mockProvider{name: "p"}, tt.perMin)
		if got := rl.limiter.Burst(); got != tt.burst {
			t.Errorf("perMin=%d: burst = %d, want %d", tt.perMin, got, tt.burst)
		}
		if got, want := float64(rl.limiter.Limit()), float64(tt.perMin)/60; got != want {
			t.Errorf("perMin=%d: limit = %v/s, want %v/s", tt.perMin, got, want)
		}
	}
}

func TestRateLimited_BurstIsImmediate(t *testing.T) {
	inner := &mockProvider{name: "inner", text: "ok"}
	rl := NewRateLimited(inner, 60) // burst 6

	start := time.Now()
	for i := 0; i < 6; i++ {
		if _, err := rl.Generate(context.Background(), domain.GenerateRequest{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("burst should not wait, took %v", elapsed)
	}
	if inner.calls != 6 {
		t.Fatalf("expected 6 inner calls, got %d", inner.calls)
	}
}

func TestRateLimited_WaitsAfterBurst(t *testing.T) {
	inner := &mockProvider{name: "inner", text: "ok"}
	rl := NewRateLimited(inner, 600) // 10/sec, burst 60
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		if _, err := rl.Generate(ctx, domain.GenerateRequest{}); err != nil {
			t.Fatalf("burst call %d: %v", i, err)
		}
	}

	start := time.Now()
	if _, err := rl.Generate(ctx, domain.GenerateRequest{}); err != nil {
		t.Fatalf("after burst: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected to wait for a token, got %v", elapsed)
	}
}

func TestRateLimited_DeadlineShorterThanWait(t *testing.T) {
	inner := &mockProvider{name: "inner", text: "ok"}
	rl := NewRateLimited(inner, 1)

	if _, err := rl.Generate(context.Background(), domain.GenerateRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rl.Generate(ctx, domain.GenerateRequest{}); err == nil {
		t.Fatal("expected an error when the next token is a minute away")
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 inner call, got %d", inner.calls)
	}
}
