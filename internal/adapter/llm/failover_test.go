package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"aura-agents/internal/domain"
)

func TestFailoverPrimarySuccess(t *testing.T) {
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Fatal("fallback should not be called")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(okProvider("primary", "primary response"), []domain.LLMProvider{fallback}, newTestLogger())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "primary response" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if fp.Name() != "primary" {
		t.Errorf("Name() = %q, want primary", fp.Name())
	}
}

func TestFailoverFallbackUsesItsOwnModel(t *testing.T) {
	var fallbackModel string
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
			fallbackModel = req.Model
			return &domain.ChatResponse{Message: domain.Message{Content: "fallback response"}}, nil
		},
	}

	fp := NewFailoverProvider(failingProvider("primary", domain.ErrRateLimit), []domain.LLMProvider{fallback}, newTestLogger())
	resp, err := fp.Chat(context.Background(), domain.ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "fallback response" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if fallbackModel != "" {
		t.Errorf("fallback model = %q, want empty so the fallback default applies", fallbackModel)
	}
}

func TestFailoverAllFail(t *testing.T) {
	fp := NewFailoverProvider(
		failingProvider("primary", domain.ErrRateLimit),
		[]domain.LLMProvider{
			failingProvider("fb1", domain.ErrAuthInvalid),
			failingProvider("fb2", errors.New("fb2 down")),
		},
		newTestLogger(),
	)

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"primary", "fb1", "fb2"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should mention %s: %v", name, err)
		}
	}
	if !errors.Is(err, domain.ErrRateLimit) || !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("joined error lost its causes: %v", err)
	}
	if domain.CategoryOf(err) != domain.ErrProviderUnavailable {
		t.Errorf("category = %v", domain.CategoryOf(err))
	}
}

func TestFailoverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(ctx context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	fallback := &mockProvider{
		name: "fallback",
		chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			t.Error("fallback must not run after cancellation")
			return nil, nil
		},
	}

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, newTestLogger())
	_, err := fp.Chat(ctx, domain.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFailoverHealth(t *testing.T) {
	down, up := false, true
	primary := okProvider("primary", "")
	primary.healthy = &down
	fallback := okProvider("fallback", "")
	fallback.healthy = &up

	fp := NewFailoverProvider(primary, []domain.LLMProvider{fallback}, nil)
	if !fp.IsHealthy(context.Background()) {
		t.Error("healthy fallback should make the chain healthy")
	}

	fallback.healthy = &down
	if fp.IsHealthy(context.Background()) {
		t.Error("chain with no healthy member should be unhealthy")
	}
}
