// Package registry holds the live agents and resolves capability queries to
// the best-ranked agent. Reads never block on reloads: each id is swapped
// atomically in a sync.Map, and only the reload path is serialized.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"aura-agents/internal/domain"
)

// Factory converts a parsed definition into an executable agent.
type Factory func(def domain.AgentDefinition) (domain.Agent, error)

type entry struct {
	agent  domain.Agent
	pinned bool
	seq    uint64 // registration order, kept across overwrites
	source string // empty for pinned agents
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Agent  domain.Agent
	Pinned bool
	Source string
}

// Config wires a Registry.
type Config struct {
	Sources    []domain.DefinitionSource
	Factory    Factory
	Bus        domain.EventBus // optional
	Strategies []Strategy      // nil = DefaultStrategies()
	Logger     *slog.Logger
}

// Registry is the concurrent id -> agent map.
type Registry struct {
	agents     sync.Map // canonical id -> *entry
	seq        atomic.Uint64
	reloadMu   sync.Mutex
	sources    []domain.DefinitionSource
	factory    Factory
	strategies []Strategy
	bus        domain.EventBus
	logger     *slog.Logger
}

// New creates an empty registry. Call ReloadAll to populate it from its
// sources.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	strategies := cfg.Strategies
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Registry{
		sources:    cfg.Sources,
		factory:    cfg.Factory,
		strategies: strategies,
		bus:        cfg.Bus,
		logger:     logger,
	}
}

// Sources returns the definition sources the registry reloads from.
func (r *Registry) Sources() []domain.DefinitionSource {
	return r.sources
}

// Register adds or replaces agent. Pinned agents are never removed by a
// reload. It reports whether an existing entry was replaced.
func (r *Registry) Register(agent domain.Agent, pinned bool) bool {
	return r.put(agent, pinned, "")
}

func (r *Registry) put(agent domain.Agent, pinned bool, source string) bool {
	id := domain.CanonicalID(agent.ID())
	e := &entry{agent: agent, pinned: pinned, source: source}
	replaced := r.store(id, e)

	evt := domain.EventAgentAdded
	if replaced != nil {
		evt = domain.EventAgentUpdated
	}
	r.logger.Debug("agent registered", "agent_id", id, "pinned", pinned, "source", source, "replaced", replaced != nil)
	domain.PublishEvent(context.Background(), r.bus, evt, domain.AgentChangePayload{AgentID: id, Pinned: pinned, Source: source})
	return replaced != nil
}

// store atomically installs e under id and returns the entry it replaced.
func (r *Registry) store(id string, e *entry) *entry {
	for {
		old, loaded := r.agents.Load(id)
		if !loaded {
			e.seq = r.seq.Add(1)
			if _, raced := r.agents.LoadOrStore(id, e); !raced {
				return nil
			}
			continue
		}
		prev := old.(*entry)
		e.seq = prev.seq
		if r.agents.CompareAndSwap(id, old, e) {
			return prev
		}
	}
}

// Unregister removes id. It reports whether an agent was removed.
func (r *Registry) Unregister(id string) bool {
	id = domain.CanonicalID(id)
	v, ok := r.agents.LoadAndDelete(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	r.logger.Debug("agent unregistered", "agent_id", id)
	domain.PublishEvent(context.Background(), r.bus, domain.EventAgentRemoved, domain.AgentChangePayload{AgentID: id, Pinned: e.pinned, Source: e.source})
	return true
}

// removeDiscovered deletes id only if it is still the discovered entry that
// was observed, so a concurrent Register is never undone.
func (r *Registry) removeDiscovered(id string, e *entry) bool {
	if e.pinned || !r.agents.CompareAndDelete(id, e) {
		return false
	}
	domain.PublishEvent(context.Background(), r.bus, domain.EventAgentRemoved, domain.AgentChangePayload{AgentID: id, Source: e.source})
	return true
}

// Get returns the agent registered under id.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	e, ok := r.load(domain.CanonicalID(id))
	if !ok {
		return nil, false
	}
	return e.agent, true
}

func (r *Registry) load(id string) (*entry, bool) {
	v, ok := r.agents.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// IsPinned reports whether id is registered as a pinned agent.
func (r *Registry) IsPinned(id string) bool {
	e, ok := r.load(domain.CanonicalID(id))
	return ok && e.pinned
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	n := 0
	r.agents.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// List returns every registered agent ordered by id.
func (r *Registry) List() []AgentInfo {
	var out []AgentInfo
	r.agents.Range(func(_, v any) bool {
		e := v.(*entry)
		out = append(out, AgentInfo{Agent: e.agent, Pinned: e.pinned, Source: e.source})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Agent.ID() < out[j].Agent.ID() })
	return out
}

// ByCapability returns the agents declaring capability (after alias
// resolution) that serve language, ordered by ascending priority. Ties keep
// registration order.
func (r *Registry) ByCapability(capability, language string) []domain.Agent {
	return agentsOf(r.match(domain.CanonicalCapability(capability), domain.CanonicalLanguage(language)))
}

func (r *Registry) match(capability, language string) []*entry {
	var matches []*entry
	r.agents.Range(func(_, v any) bool {
		e := v.(*entry)
		def := e.agent.Definition()
		if declares(def, capability) && serves(def, language) {
			matches = append(matches, e)
		}
		return true
	})
	sort.SliceStable(matches, func(i, j int) bool {
		pi, pj := matches[i].agent.Definition().Priority, matches[j].agent.Definition().Priority
		if pi != pj {
			return pi < pj
		}
		return matches[i].seq < matches[j].seq
	})
	return matches
}

func agentsOf(entries []*entry) []domain.Agent {
	out := make([]domain.Agent, len(entries))
	for i, e := range entries {
		out[i] = e.agent
	}
	return out
}

// declares compares in canonical form so programmatically built definitions
// match the same way parsed ones do.
func declares(def domain.AgentDefinition, capability string) bool {
	for _, c := range def.Capabilities {
		if domain.CanonicalCapability(c) == capability {
			return true
		}
	}
	return false
}

func serves(def domain.AgentDefinition, language string) bool {
	if len(def.Languages) == 0 || language == "" {
		return true
	}
	for _, l := range def.Languages {
		if domain.CanonicalLanguage(l) == language {
			return true
		}
	}
	return false
}
