package domain

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool for the LLM function-calling protocol.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`

	// RequiresConfirmation gates execution on the ConfirmationService.
	RequiresConfirmation bool `json:"-"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool. IsError results are
// observations for the model, not Go errors.
type ToolResult struct {
	Content     string            `json:"content"`
	IsError     bool              `json:"is_error"`
	IsRetryable bool              `json:"is_retryable,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Definition() ToolDefinition
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolRegistry resolves and executes tools by name.
type ToolRegistry interface {
	// Lookup returns the definition of a registered tool.
	Lookup(name string) (ToolDefinition, bool)
	// Execute runs the named tool. workingDir, when set, is the directory
	// relative paths resolve against.
	Execute(ctx context.Context, name, workingDir string, params json.RawMessage) (*ToolResult, error)
}

// ConfirmationService approves or rejects sensitive tool calls.
type ConfirmationService interface {
	RequestApproval(ctx context.Context, toolID, description, argsJSON string) (bool, error)
}
