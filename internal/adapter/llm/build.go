package llm

import (
	"fmt"
	"log/slog"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
)

// NewProvider builds the bare provider for one configuration entry.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrValidationFailed,
			fmt.Sprintf("provider %q: unsupported type %q", cfg.Name, cfg.Type))
	}
}

// NewRegistryFromConfig builds every configured provider, applies the rate
// limit and circuit breaker wrappers, chains failover onto the default
// provider and returns the populated registry.
func NewRegistryFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	built := make(map[string]domain.LLMProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, err
		}
		if cfg.RateLimit.Enabled {
			p = NewRateLimitedProvider(p, cfg.RateLimit)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		built[pc.Name] = p
	}

	if cfg.Failover.Enabled && len(cfg.Failover.Fallbacks) > 0 {
		primary, ok := built[cfg.DefaultProvider]
		if !ok {
			return nil, domain.NewDomainError("llm.NewRegistryFromConfig", domain.ErrProviderNotFound, cfg.DefaultProvider)
		}
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.Failover.Fallbacks {
			fb, ok := built[name]
			if !ok {
				return nil, domain.NewDomainError("llm.NewRegistryFromConfig", domain.ErrProviderNotFound, "fallback "+name)
			}
			if name != cfg.DefaultProvider {
				fallbacks = append(fallbacks, fb)
			}
		}
		built[cfg.DefaultProvider] = NewFailoverProvider(primary, fallbacks, logger)
	}

	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		if err := reg.Register(built[pc.Name]); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultProvider != "" {
		if err := reg.SetDefault(cfg.DefaultProvider); err != nil {
			return nil, err
		}
	}

	logger.Info("llm providers ready", "providers", reg.List(), "default", reg.Default())
	return reg, nil
}
