package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Registry change notifications.
	EventAgentAdded   EventType = "agent.added"
	EventAgentUpdated EventType = "agent.updated"
	EventAgentRemoved EventType = "agent.removed"
	EventReloaded     EventType = "registry.reloaded"

	// Execution lifecycle.
	EventExecutionStarted  EventType = "execution.started"
	EventExecutionFinished EventType = "execution.finished"
	EventLLMCallStarted    EventType = "llm.call.started"
	EventLLMCallCompleted  EventType = "llm.call.completed"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventToolCallRejected  EventType = "tool.call.rejected"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type        EventType       `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// AgentChangePayload is the payload of agent.added/updated/removed events.
type AgentChangePayload struct {
	AgentID string `json:"agent_id"`
	Pinned  bool   `json:"pinned,omitempty"`
	Source  string `json:"source,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// PublishEvent marshals payload and publishes it on bus. A nil bus is a no-op.
func PublishEvent(ctx context.Context, bus EventBus, eventType EventType, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, Event{
		Type:        eventType,
		Timestamp:   time.Now(),
		ExecutionID: ExecutionIDFromContext(ctx),
		Payload:     raw,
	})
}
