package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
)

// DefaultMaxIterations bounds the tool loop when neither the definition nor
// the engine config sets a limit.
const DefaultMaxIterations = 10

// ProviderResolver returns the LLM provider registered under name. An empty
// name selects the default provider.
type ProviderResolver interface {
	Resolve(name string) (domain.LLMProvider, error)
}

// EngineDeps holds injected dependencies shared by every template agent.
type EngineDeps struct {
	Providers     ProviderResolver
	Tools         domain.ToolRegistry        // optional, nil = no tools
	Confirmer     domain.ConfirmationService // optional, nil = reject gated tools
	Enricher      domain.Enricher            // optional, nil = no auto-enrichment
	Builder       *ContextBuilder
	Bus           domain.EventBus // optional, nil = no events
	Logger        *slog.Logger
	MaxIterations int
}

// TemplateAgent is an LLM-backed agent driven by its definition's prompt
// template. It holds no per-execution state, so concurrent Execute calls
// are independent.
type TemplateAgent struct {
	def  domain.AgentDefinition
	deps EngineDeps
}

var _ domain.Agent = (*TemplateAgent)(nil)

// NewTemplateAgent binds def to the engine dependencies.
func NewTemplateAgent(def domain.AgentDefinition, deps EngineDeps) *TemplateAgent {
	if deps.Builder == nil {
		deps.Builder = NewContextBuilder(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	return &TemplateAgent{def: def.Clone(), deps: deps}
}

// ID implements domain.Agent.
func (a *TemplateAgent) ID() string { return a.def.ID }

// Definition implements domain.Agent.
func (a *TemplateAgent) Definition() domain.AgentDefinition { return a.def.Clone() }

func (a *TemplateAgent) maxIterations() int {
	if a.def.MaxIterations > 0 {
		return a.def.MaxIterations
	}
	return a.deps.MaxIterations
}

// Execute runs one execution: optional enrichment, prompt rendering, then
// either a single model call or the bounded tool loop. Every returned error
// matches exactly one domain category.
func (a *TemplateAgent) Execute(ctx context.Context, ec domain.ExecutionContext) (*domain.ExecutionOutput, error) {
	const op = "Agent.Execute"
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify(op, err)
	}

	execID := newExecutionID()
	ctx = domain.ContextWithExecutionID(ctx, execID)
	ctx, span := tracer.StartSpan(ctx, "agent.execute",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", a.def.ID),
			tracer.StringAttr("execution.id", execID),
		),
	)
	defer span.End()

	logger := a.deps.Logger.With("agent_id", a.def.ID, "execution_id", execID)
	domain.PublishEvent(ctx, a.deps.Bus, domain.EventExecutionStarted, map[string]string{"agent_id": a.def.ID})

	run := &execution{agent: a, logger: logger, span: span, out: &domain.ExecutionOutput{
		ExecutionID: execID,
		AgentID:     a.def.ID,
	}}
	err := run.do(ctx, ec)

	finished := map[string]any{"agent_id": a.def.ID, "iterations": run.out.Iterations, "tokens": run.out.TokensUsed}
	if err != nil {
		err = domain.Classify(op, err)
		tracer.RecordError(span, err)
		finished["error"] = string(domain.ErrorCodeOf(err))
		domain.PublishEvent(ctx, a.deps.Bus, domain.EventExecutionFinished, finished)
		logger.Warn("execution failed", "error", err, "iterations", run.out.Iterations)
		return nil, err
	}

	span.SetAttributes(
		tracer.IntAttr("execution.iterations", run.out.Iterations),
		tracer.IntAttr("execution.tokens", run.out.TokensUsed),
	)
	tracer.SetOK(span)
	domain.PublishEvent(ctx, a.deps.Bus, domain.EventExecutionFinished, finished)
	logger.Info("execution completed",
		"iterations", run.out.Iterations,
		"tokens", run.out.TokensUsed,
		"tool_calls", len(run.out.ToolCalls),
	)
	return run.out, nil
}

// execution carries the state of one Execute call.
type execution struct {
	agent  *TemplateAgent
	logger *slog.Logger
	span   trace.Span
	out    *domain.ExecutionOutput
}

func (e *execution) do(ctx context.Context, ec domain.ExecutionContext) error {
	a := e.agent
	def := a.def

	if (def.UseRetrieval || def.UseGraph) && a.deps.Enricher != nil && !ec.Enriched {
		opts := def.Retrieval
		ec = a.deps.Enricher.Enrich(ctx, ec, def.UseRetrieval, def.UseGraph, &opts)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.deps.Providers == nil {
		return domain.NewDomainError("Agent.Execute", domain.ErrProviderNotFound, "no provider registry configured")
	}
	provider, err := a.deps.Providers.Resolve(def.Provider)
	if err != nil {
		return err
	}

	messages := a.deps.Builder.Build(def, ec)
	tools := e.resolveTools()

	if len(tools) == 0 {
		resp, err := e.chat(ctx, provider, messages, nil, 0)
		if err != nil {
			return err
		}
		e.out.Iterations = 1
		e.out.Content = resp.Message.Content
		return nil
	}

	toolDefs := make([]domain.ToolDefinition, 0, len(tools))
	for _, name := range def.Tools {
		if td, ok := tools[name]; ok {
			toolDefs = append(toolDefs, td)
		}
	}

	limit := a.maxIterations()
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		resp, err := e.chat(ctx, provider, messages, toolDefs, i)
		if err != nil {
			return err
		}
		e.out.Iterations = i + 1

		msg := resp.Message
		if len(msg.ToolCalls) == 0 {
			e.out.Content = msg.Content
			return nil
		}

		msg.Role = domain.RoleAssistant
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		messages = append(messages, msg)

		for _, call := range msg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return err
			}
			toolMsg, err := e.invoke(ctx, ec.Workspace, tools, call)
			if err != nil {
				return err
			}
			messages = append(messages, toolMsg)
		}
	}

	return domain.NewDomainError("Agent.Execute", domain.ErrMaxIterations,
		fmt.Sprintf("agent %s made tool calls in all %d iterations", def.ID, limit))
}

// resolveTools returns the declared tools the registry knows.
func (e *execution) resolveTools() map[string]domain.ToolDefinition {
	a := e.agent
	if a.deps.Tools == nil || len(a.def.Tools) == 0 {
		return nil
	}
	tools := make(map[string]domain.ToolDefinition, len(a.def.Tools))
	for _, name := range a.def.Tools {
		td, ok := a.deps.Tools.Lookup(name)
		if !ok {
			e.logger.Warn("declared tool not registered", "tool", name)
			continue
		}
		tools[name] = td
	}
	return tools
}

func (e *execution) chat(ctx context.Context, provider domain.LLMProvider, messages []domain.Message, tools []domain.ToolDefinition, iteration int) (*domain.ChatResponse, error) {
	a := e.agent
	ctx, span := tracer.StartSpan(ctx, "agent.llm_call",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", provider.Name()),
			tracer.IntAttr("iteration", iteration),
		),
	)
	defer span.End()

	domain.PublishEvent(ctx, a.deps.Bus, domain.EventLLMCallStarted, map[string]any{"agent_id": a.def.ID, "iteration": iteration})
	resp, err := provider.Chat(ctx, domain.ChatRequest{
		Model:       a.def.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: a.def.Temperature,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	domain.PublishEvent(ctx, a.deps.Bus, domain.EventLLMCallCompleted, map[string]any{
		"agent_id":   a.def.ID,
		"iteration":  iteration,
		"tool_calls": len(resp.Message.ToolCalls),
	})

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	e.out.TokensUsed += tokens

	e.logger.Debug("llm response",
		"iteration", iteration,
		"tool_calls", len(resp.Message.ToolCalls),
		"tokens", tokens,
	)
	tracer.SetOK(span)
	return resp, nil
}

// toolObservation is the structured error fed back to the model.
type toolObservation struct {
	Error    string `json:"error"`
	Rejected bool   `json:"rejected,omitempty"`
}

func observation(msg string, rejected bool) string {
	data, _ := json.Marshal(toolObservation{Error: msg, Rejected: rejected})
	return string(data)
}

// invoke runs one tool call and returns its observation message. Tool-level
// failures become observations; only cancellation is returned as an error.
func (e *execution) invoke(ctx context.Context, workspace string, tools map[string]domain.ToolDefinition, call domain.ToolCall) (domain.Message, error) {
	a := e.agent
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	args := string(call.Arguments)
	if args == "" {
		args = "{}"
	}
	record := domain.ToolInvocationRecord{Name: call.Name, Input: args}

	finish := func(content string) domain.Message {
		record.Result = content
		e.out.ToolCalls = append(e.out.ToolCalls, record)
		return domain.Message{
			Role:    domain.RoleTool,
			Name:    call.Name,
			Content: content,
			ToolCalls: []domain.ToolCall{{
				ID:   call.ID,
				Name: call.Name,
			}},
			Timestamp: time.Now(),
		}
	}

	td, ok := tools[call.Name]
	if !ok {
		e.logger.Warn("model requested unknown tool", "tool", call.Name)
		record.Failed = true
		span.SetAttributes(tracer.StringAttr("tool.outcome", "unknown"))
		return finish(observation("unknown tool: "+call.Name, false)), nil
	}

	if td.RequiresConfirmation {
		approved := false
		if a.deps.Confirmer != nil {
			var err error
			approved, err = a.deps.Confirmer.RequestApproval(ctx, td.Name, td.Description, args)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return domain.Message{}, ctxErr
				}
				e.logger.Warn("confirmation failed, rejecting tool call", "tool", call.Name, "error", err)
				approved = false
			}
		}
		if !approved {
			record.Rejected = true
			span.SetAttributes(tracer.StringAttr("tool.outcome", "rejected"))
			domain.PublishEvent(ctx, a.deps.Bus, domain.EventToolCallRejected, map[string]string{"tool": call.Name})
			e.logger.Info("tool call rejected", "tool", call.Name)
			return finish(observation("tool call rejected: "+call.Name, true)), nil
		}
	}

	domain.PublishEvent(ctx, a.deps.Bus, domain.EventToolCallStarted, map[string]string{"tool": call.Name})
	res, err := a.deps.Tools.Execute(ctx, call.Name, workspace, json.RawMessage(args))
	domain.PublishEvent(ctx, a.deps.Bus, domain.EventToolCallCompleted, map[string]any{
		"tool":    call.Name,
		"success": err == nil && (res == nil || !res.IsError),
	})

	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Message{}, ctxErr
		}
		tracer.RecordError(span, err)
		e.logger.Warn("tool failed, feeding error back", "tool", call.Name, "error", err)
		record.Failed = true
		return finish(observation(err.Error(), false)), nil
	case res == nil:
		tracer.SetOK(span)
		return finish(""), nil
	case res.IsError:
		span.SetAttributes(tracer.StringAttr("tool.outcome", "error"))
		record.Failed = true
		return finish(observation(res.Content, false)), nil
	}

	for name, content := range res.Artifacts {
		if e.out.Artifacts == nil {
			e.out.Artifacts = make(map[string]string)
		}
		e.out.Artifacts[name] = content
	}
	tracer.SetOK(span)
	return finish(res.Content), nil
}

// newExecutionID returns a ULID string, sortable by creation time.
func newExecutionID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
