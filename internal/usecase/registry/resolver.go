package registry

import (
	"strings"

	"aura-agents/internal/domain"
)

// Strategy rewrites a canonical capability into the capability to look up.
// ok is false when the strategy does not apply.
type Strategy interface {
	Name() string
	Rewrite(capability string) (string, bool)
}

// Strategy names reported in Resolution.Strategy.
const (
	StrategyExact    = "exact"
	StrategyWildcard = "wildcard"
	StrategyBase     = "base"
)

type exactStrategy struct{}

func (exactStrategy) Name() string { return StrategyExact }

func (exactStrategy) Rewrite(c string) (string, bool) { return c, c != "" }

// wildcardStrategy turns "prefix:value" into "prefix:*".
type wildcardStrategy struct{}

func (wildcardStrategy) Name() string { return StrategyWildcard }

func (wildcardStrategy) Rewrite(c string) (string, bool) {
	prefix, value, ok := domain.SplitParameterized(c)
	if !ok || value == "*" {
		return "", false
	}
	return prefix + domain.WildcardSuffix, true
}

// baseStrategy reduces specialised capabilities like "rust-coding" to their
// base capability.
type baseStrategy struct{}

func (baseStrategy) Name() string { return StrategyBase }

func (baseStrategy) Rewrite(c string) (string, bool) {
	if strings.Contains(c, ":") {
		return "", false
	}
	return domain.BaseCapability(c)
}

// DefaultStrategies is the resolution order: exact, wildcard, base.
func DefaultStrategies() []Strategy {
	return []Strategy{exactStrategy{}, wildcardStrategy{}, baseStrategy{}}
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Agent domain.Agent
	// Strategy is the name of the strategy that matched.
	Strategy string
	// Capability is the capability actually looked up.
	Capability string
}

// Resolve finds the best agent for capability and language. The capability
// is canonicalized through the alias table, then each strategy is tried in
// order; the first one with a match wins and its lowest-priority agent is
// returned. Fails with domain.ErrAgentNotFound when nothing matches.
func (r *Registry) Resolve(capability, language string) (Resolution, error) {
	canon := domain.CanonicalCapability(capability)
	lang := domain.CanonicalLanguage(language)

	for _, s := range r.strategies {
		target, ok := s.Rewrite(canon)
		if !ok {
			continue
		}
		if matches := r.match(target, lang); len(matches) > 0 {
			return Resolution{Agent: matches[0].agent, Strategy: s.Name(), Capability: target}, nil
		}
	}

	detail := "capability " + canon
	if lang != "" {
		detail += ", language " + lang
	}
	return Resolution{}, domain.NewDomainError("Registry.Resolve", domain.ErrAgentNotFound, detail)
}

// BestFor returns the best agent for capability and language, or false.
func (r *Registry) BestFor(capability, language string) (domain.Agent, bool) {
	res, err := r.Resolve(capability, language)
	if err != nil {
		return nil, false
	}
	return res.Agent, true
}
