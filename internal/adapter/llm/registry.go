package llm

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aura-agents/internal/domain"
)

// Registry holds named LLM providers and the default used by agents that
// do not name one.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]domain.LLMProvider
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider under its Name. The first provider registered
// becomes the default until SetDefault says otherwise.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, "provider "+name)
	}
	r.providers[name] = provider
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// SetDefault selects the provider Resolve returns for an empty name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[name]; !ok {
		return domain.NewDomainError("Registry.SetDefault", domain.ErrProviderNotFound, name)
	}
	r.defaultName = name
	return nil
}

// Default returns the default provider name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Resolve implements the engine's provider lookup. An empty name selects
// the default provider.
func (r *Registry) Resolve(name string) (domain.LLMProvider, error) {
	if name == "" {
		name = r.Default()
		if name == "" {
			return nil, domain.NewDomainError("Registry.Resolve", domain.ErrProviderNotFound, "no default provider")
		}
	}
	return r.Get(name)
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HealthStatus is the outcome of probing one provider.
type HealthStatus struct {
	Name    string        `json:"name"`
	Default bool          `json:"default"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// HealthCheck probes every provider concurrently. Providers that cannot be
// probed count as healthy.
func (r *Registry) HealthCheck(ctx context.Context) []HealthStatus {
	names := r.List()
	def := r.Default()
	out := make([]HealthStatus, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			out[i] = HealthStatus{
				Name:    name,
				Default: name == def,
				Healthy: isHealthy(gctx, p),
				Latency: time.Since(start),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func isHealthy(ctx context.Context, p domain.LLMProvider) bool {
	hc, ok := p.(domain.HealthChecker)
	if !ok {
		return true
	}
	return hc.IsHealthy(ctx)
}

// String is used in log lines.
func (s HealthStatus) String() string {
	state := "healthy"
	if !s.Healthy {
		state = "unhealthy"
	}
	return fmt.Sprintf("%s %s (%s)", s.Name, state, s.Latency.Round(time.Millisecond))
}
