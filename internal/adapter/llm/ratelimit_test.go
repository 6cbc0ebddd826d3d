package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
)

func TestRateLimitedProviderBurst(t *testing.T) {
	var calls atomic.Int32
	inner := &mockProvider{
		name: "p",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			calls.Add(1)
			return &domain.ChatResponse{}, nil
		},
	}
	p := NewRateLimitedProvider(inner, config.RateLimitConfig{RequestsPerSecond: 20, Burst: 2})

	start := time.Now()
	for range 3 {
		if _, err := p.Chat(context.Background(), domain.ChatRequest{}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	// Two calls fit the burst; the third waits about 50ms for a token.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("third call was not paced: %v", elapsed)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if p.Name() != "p" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestRateLimitedProviderDeadline(t *testing.T) {
	p := NewRateLimitedProvider(okProvider("p", "ok"), config.RateLimitConfig{RequestsPerSecond: 0.1, Burst: 1})

	if _, err := p.Chat(context.Background(), domain.ChatRequest{}); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, domain.ChatRequest{})
	if !errors.Is(err, domain.ErrRateLimit) && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want rate limit or deadline", err)
	}
}

func TestRateLimitedProviderCancelled(t *testing.T) {
	p := NewRateLimitedProvider(okProvider("p", "ok"), config.RateLimitConfig{RequestsPerSecond: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Chat(ctx, domain.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
