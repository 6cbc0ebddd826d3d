package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
)

var (
	_ domain.LLMProvider   = (*RateLimitedProvider)(nil)
	_ domain.HealthChecker = (*RateLimitedProvider)(nil)
)

// RateLimitedProvider paces Chat calls with a token bucket shared by every
// agent using the provider. Callers wait for a token or their context.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner. A non-positive burst allows one
// request at a time.
func NewRateLimitedProvider(inner domain.LLMProvider, cfg config.RateLimitConfig) *RateLimitedProvider {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Chat implements domain.LLMProvider.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("waiting for %s rate limit: %w", p.inner.Name(), ctxErr)
		}
		// Wait fails early when the deadline cannot be met.
		return nil, fmt.Errorf("provider %q: %w: %v", p.inner.Name(), domain.ErrRateLimit, err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// IsHealthy implements domain.HealthChecker.
func (p *RateLimitedProvider) IsHealthy(ctx context.Context) bool {
	return isHealthy(ctx, p.inner)
}
