package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"aura-agents/internal/domain"
)

var _ domain.ToolRegistry = (*Registry)(nil)

// Registry holds named tools and implements domain.ToolRegistry. Every tool
// is wrapped with JSON-schema argument validation on Register; a schema that
// fails to compile is logged and the tool is registered unwrapped.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. A second tool with the same name is rejected.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()
	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		wrapped = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, "tool "+name)
	}
	r.tools[name] = wrapped
	return nil
}

// RegisterAll registers tools in order and stops at the first failure.
func (r *Registry) RegisterAll(tools ...domain.Tool) error {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Lookup implements domain.ToolRegistry.
func (r *Registry) Lookup(name string) (domain.ToolDefinition, bool) {
	t, err := r.Get(name)
	if err != nil {
		return domain.ToolDefinition{}, false
	}
	return t.Definition(), true
}

// Execute implements domain.ToolRegistry. workingDir, when set, travels in
// the context so filesystem tools resolve relative paths against it.
func (r *Registry) Execute(ctx context.Context, name, workingDir string, params json.RawMessage) (*domain.ToolResult, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if workingDir != "" {
		ctx = domain.ContextWithWorkspace(ctx, workingDir)
	}
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	return t.Execute(ctx, params)
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	slices.SortFunc(tools, func(a, b domain.Tool) int {
		switch {
		case a.Name() < b.Name():
			return -1
		case a.Name() > b.Name():
			return 1
		}
		return 0
	})
	return tools
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []domain.ToolDefinition {
	tools := r.List()
	defs := make([]domain.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}

// confirmedTool marks an existing tool as requiring confirmation.
type confirmedTool struct {
	domain.Tool
}

// RequireConfirmation returns t with RequiresConfirmation set on its definition.
func RequireConfirmation(t domain.Tool) domain.Tool {
	return confirmedTool{Tool: t}
}

func (c confirmedTool) Definition() domain.ToolDefinition {
	def := c.Tool.Definition()
	def.RequiresConfirmation = true
	return def
}
