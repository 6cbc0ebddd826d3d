package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aura-agents/internal/domain"
)

// SchemaValidatingTool checks call arguments against the tool's parameter
// schema before delegating. Invalid arguments come back as an error
// observation for the model rather than a Go error.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps t. Tools without a parameter schema are
// returned unchanged.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Definition().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	url := "mem://tools/" + t.Name() + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string                      { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string               { return s.inner.Description() }
func (s *SchemaValidatingTool) Definition() domain.ToolDefinition { return s.inner.Definition() }

func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("invalid JSON arguments: %v", err),
		}, nil
	}

	if err := s.schema.Validate(v); err != nil {
		return &domain.ToolResult{
			IsError: true,
			Content: fmt.Sprintf("arguments do not match %s schema: %v", s.inner.Name(), err),
		}, nil
	}

	return s.inner.Execute(ctx, params)
}
