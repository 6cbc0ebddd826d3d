package domain

import "context"

// LLMProvider is the interface for any LLM backend.
//
// A single Chat call covers both plain completion and tool calling: when
// req.Tools is non-empty the response may carry Message.ToolCalls. Providers
// must signal failures with errors matching ErrProviderUnavailable,
// ErrModelNotFound, ErrTimeout or ErrCancelled where the condition applies.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "ollama").
	Name() string
}

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}
