package domain

import "context"

// Definition defaults applied when a field is missing or malformed.
const (
	DefaultTemperature = 0.7
	DefaultPriority    = 50
)

// AgentDefinition is the parsed, immutable description of an agent.
// Capabilities and Languages are stored in canonical form.
type AgentDefinition struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Provider      string            `json:"provider,omitempty"`
	Model         string            `json:"model,omitempty"`
	Temperature   float64           `json:"temperature"`
	Capabilities  []string          `json:"capabilities"`
	Languages     []string          `json:"languages,omitempty"`
	Priority      int               `json:"priority"`
	Tags          []string          `json:"tags,omitempty"`
	Tools         []string          `json:"tools,omitempty"`
	SystemPrompt  string            `json:"system_prompt"`
	MaxIterations int               `json:"max_iterations,omitempty"`
	UseRetrieval  bool              `json:"use_retrieval,omitempty"`
	UseGraph      bool              `json:"use_graph,omitempty"`
	Retrieval     RetrievalOptions  `json:"retrieval,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	SourcePath    string            `json:"source_path,omitempty"`
}

// HasCapability reports whether the definition declares capability c.
// c must already be canonical.
func (d AgentDefinition) HasCapability(c string) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// SupportsLanguage reports whether the agent serves lang. Polyglot agents
// (no languages) and empty queries always match.
func (d AgentDefinition) SupportsLanguage(lang string) bool {
	if len(d.Languages) == 0 || lang == "" {
		return true
	}
	for _, have := range d.Languages {
		if have == lang {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never mutate a registered definition.
func (d AgentDefinition) Clone() AgentDefinition {
	out := d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	out.Languages = append([]string(nil), d.Languages...)
	out.Tags = append([]string(nil), d.Tags...)
	out.Tools = append([]string(nil), d.Tools...)
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Agent is a definition bound to executable behavior. Implementations must be
// safe for concurrent Execute calls.
type Agent interface {
	ID() string
	Definition() AgentDefinition
	Execute(ctx context.Context, ec ExecutionContext) (*ExecutionOutput, error)
}

// ExecutionContext is the input to a single agent execution.
type ExecutionContext struct {
	Prompt    string    `json:"prompt"`
	History   []Message `json:"history,omitempty"`
	Workspace string    `json:"workspace,omitempty"`

	// Properties is an extension point for agent-specific extras. Core logic
	// never depends on keys inside it.
	Properties map[string]any `json:"properties,omitempty"`

	RetrievalText    string            `json:"retrieval_text,omitempty"`
	RetrievalResults []RetrievalResult `json:"retrieval_results,omitempty"`
	GraphText        string            `json:"graph_text,omitempty"`
	Graph            *GraphResult      `json:"graph,omitempty"`

	// Enriched is set once an enrichment pass ran, successful or not, so the
	// engine does not query the same services twice.
	Enriched bool `json:"enriched,omitempty"`
}

// ExecutionOutput is the result of a successful execution.
type ExecutionOutput struct {
	ExecutionID string                 `json:"execution_id"`
	AgentID     string                 `json:"agent_id"`
	Content     string                 `json:"content"`
	TokensUsed  int                    `json:"tokens_used"`
	Iterations  int                    `json:"iterations"`
	ToolCalls   []ToolInvocationRecord `json:"tool_calls,omitempty"`
	Artifacts   map[string]string      `json:"artifacts,omitempty"`
}

// ToolInvocationRecord logs one tool call performed during an execution.
type ToolInvocationRecord struct {
	Name     string `json:"name"`
	Input    string `json:"input"`
	Result   string `json:"result"`
	Rejected bool   `json:"rejected,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
}
