package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aura-agents/internal/domain"
)

var (
	_ domain.LLMProvider   = (*FailoverProvider)(nil)
	_ domain.HealthChecker = (*FailoverProvider)(nil)
)

// FailoverProvider wraps a primary LLM provider with fallback providers.
// If the primary fails, it tries each fallback in order. It answers to the
// primary's name so agents keep resolving it.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    logger,
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// Cancellation and deadline expiry stop the chain immediately.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	f.logger.Warn("primary LLM failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}
	for _, fb := range f.fallbacks {
		// Fallbacks serve their own configured model.
		fbReq := req
		fbReq.Model = ""
		resp, err = fb.Chat(ctx, fbReq)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("fallback LLM failed", "provider", fb.Name(), "error", err)
	}

	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Name implements domain.LLMProvider.
func (f *FailoverProvider) Name() string { return f.primary.Name() }

// IsHealthy reports whether any provider in the chain is healthy.
func (f *FailoverProvider) IsHealthy(ctx context.Context) bool {
	if isHealthy(ctx, f.primary) {
		return true
	}
	for _, fb := range f.fallbacks {
		if isHealthy(ctx, fb) {
			return true
		}
	}
	return false
}
