package usecase

import (
	"fmt"
	"strings"
	"time"

	"aura-agents/internal/domain"
)

// Template variables every system prompt can reference.
const (
	VarPrompt       = "prompt"
	VarWorkspace    = "workspace"
	VarRAGContext   = "rag_context"
	VarGraphContext = "graph_context"
	VarAgentID      = "agent_id"
	VarAgentName    = "agent_name"
)

// ContextBuilder constructs the message sequence for one execution.
type ContextBuilder struct {
	renderer *TemplateRenderer
}

// NewContextBuilder creates a new context builder. A nil renderer gets a
// fresh one.
func NewContextBuilder(renderer *TemplateRenderer) *ContextBuilder {
	if renderer == nil {
		renderer = NewTemplateRenderer()
	}
	return &ContextBuilder{renderer: renderer}
}

// Vars flattens ec into template variables. Properties are stringified;
// core keys always win over a property of the same name.
func (cb *ContextBuilder) Vars(def domain.AgentDefinition, ec domain.ExecutionContext) map[string]string {
	vars := make(map[string]string, 6+len(ec.Properties))
	for k, v := range ec.Properties {
		if v != nil {
			vars[k] = fmt.Sprint(v)
		}
	}
	vars[VarPrompt] = ec.Prompt
	vars[VarWorkspace] = ec.Workspace
	vars[VarRAGContext] = ec.RetrievalText
	vars[VarGraphContext] = ec.GraphText
	vars[VarAgentID] = def.ID
	vars[VarAgentName] = def.Name
	return vars
}

// SystemPrompt renders the definition's template and appends any enrichment
// the template did not place itself.
func (cb *ContextBuilder) SystemPrompt(def domain.AgentDefinition, ec domain.ExecutionContext) string {
	prompt := cb.renderer.Render(def.SystemPrompt, cb.Vars(def, ec))

	var extra []string
	if ec.RetrievalText != "" && !cb.renderer.References(def.SystemPrompt, VarRAGContext) {
		extra = append(extra, "### Retrieved Knowledge\n\n"+ec.RetrievalText)
	}
	if ec.GraphText != "" && !cb.renderer.References(def.SystemPrompt, VarGraphContext) {
		extra = append(extra, "### Code Structure\n\n"+ec.GraphText)
	}
	if len(extra) == 0 {
		return prompt
	}
	return strings.TrimRight(prompt, "\n") + "\n\n## Relevant Context\n\n" + strings.Join(extra, "\n\n")
}

// Build assembles: system prompt, caller history in order, then the prompt
// as the user message.
func (cb *ContextBuilder) Build(def domain.AgentDefinition, ec domain.ExecutionContext) []domain.Message {
	now := time.Now()
	messages := make([]domain.Message, 0, 2+len(ec.History))
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   cb.SystemPrompt(def, ec),
		Timestamp: now,
	})
	messages = append(messages, ec.History...)
	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   ec.Prompt,
		Timestamp: now,
	})
	return messages
}
