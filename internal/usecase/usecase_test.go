package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"aura-agents/internal/domain"
)

// --- Mocks ---

// scriptedLLM returns its responses in order, then a plain "fallback" answer.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	requests  []domain.ChatRequest
	chatFunc  func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *scriptedLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	if len(m.responses) == 0 {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
			Usage:   domain.Usage{TotalTokens: 1},
		}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return new(resp), nil
}

func (m *scriptedLLM) Name() string { return "scripted" }

func (m *scriptedLLM) calls() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.requests...)
}

func toolCallResponse(id, name, args string, tokens int) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			ToolCalls: []domain.ToolCall{{ID: id, Name: name, Arguments: json.RawMessage(args)}},
		},
		Usage: domain.Usage{TotalTokens: tokens},
	}
}

func textResponse(content string, tokens int) domain.ChatResponse {
	return domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
		Usage:   domain.Usage{TotalTokens: tokens},
	}
}

type staticProviders struct {
	provider domain.LLMProvider
	err      error
}

func (s staticProviders) Resolve(string) (domain.LLMProvider, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.provider, nil
}

type toolCall struct {
	name       string
	workingDir string
	params     string
}

// fakeTools is an in-memory domain.ToolRegistry.
type fakeTools struct {
	mu    sync.Mutex
	defs  map[string]domain.ToolDefinition
	funcs map[string]func(params json.RawMessage) (*domain.ToolResult, error)
	calls []toolCall
}

func newFakeTools() *fakeTools {
	return &fakeTools{
		defs:  make(map[string]domain.ToolDefinition),
		funcs: make(map[string]func(json.RawMessage) (*domain.ToolResult, error)),
	}
}

func (f *fakeTools) add(def domain.ToolDefinition, fn func(json.RawMessage) (*domain.ToolResult, error)) *fakeTools {
	f.defs[def.Name] = def
	f.funcs[def.Name] = fn
	return f
}

func (f *fakeTools) Lookup(name string) (domain.ToolDefinition, bool) {
	d, ok := f.defs[name]
	return d, ok
}

func (f *fakeTools) Execute(_ context.Context, name, workingDir string, params json.RawMessage) (*domain.ToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{name: name, workingDir: workingDir, params: string(params)})
	fn := f.funcs[name]
	f.mu.Unlock()
	if fn == nil {
		return nil, domain.ErrToolNotFound
	}
	return fn(params)
}

func (f *fakeTools) executed() []toolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolCall(nil), f.calls...)
}

func textTool(content string) func(json.RawMessage) (*domain.ToolResult, error) {
	return func(json.RawMessage) (*domain.ToolResult, error) {
		return &domain.ToolResult{Content: content}, nil
	}
}

func failingTool(msg string) func(json.RawMessage) (*domain.ToolResult, error) {
	return func(json.RawMessage) (*domain.ToolResult, error) {
		return nil, errors.New(msg)
	}
}

type fakeConfirmer struct {
	approve bool
	err     error
	asked   []string
}

func (c *fakeConfirmer) RequestApproval(_ context.Context, toolID, _, argsJSON string) (bool, error) {
	c.asked = append(c.asked, toolID+" "+argsJSON)
	return c.approve, c.err
}

type fakeRetrieval struct {
	results []domain.RetrievalResult
	err     error
}

func (f *fakeRetrieval) Query(context.Context, string, domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	return f.results, f.err
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Close()                                  {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}
