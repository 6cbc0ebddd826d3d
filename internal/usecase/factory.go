package usecase

import (
	"strings"

	"aura-agents/internal/domain"
)

// AgentFactory turns parsed definitions into template agents that share one
// set of engine dependencies.
type AgentFactory struct {
	deps EngineDeps
}

// NewAgentFactory creates a factory.
func NewAgentFactory(deps EngineDeps) *AgentFactory {
	return &AgentFactory{deps: deps}
}

// Build implements registry.Factory.
func (f *AgentFactory) Build(def domain.AgentDefinition) (domain.Agent, error) {
	if def.ID == "" {
		return nil, domain.NewDomainError("AgentFactory.Build", domain.ErrInvalidDefinition, "empty id")
	}
	if strings.TrimSpace(def.SystemPrompt) == "" {
		return nil, domain.NewDomainError("AgentFactory.Build", domain.ErrInvalidDefinition, def.ID+": empty system prompt")
	}
	return NewTemplateAgent(def, f.deps), nil
}
