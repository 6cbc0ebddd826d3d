package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type greetParams struct {
	Name string `json:"name"`
}

func TestExecuteResultShapes(t *testing.T) {
	tests := []struct {
		name    string
		handler func(context.Context, trace.Span, greetParams) (any, error)
		want    string
		isError bool
	}{
		{
			name: "json value",
			handler: func(_ context.Context, _ trace.Span, p greetParams) (any, error) {
				return map[string]string{"greeting": "hello " + p.Name}, nil
			},
			want: `"greeting": "hello alice"`,
		},
		{
			name: "plain string",
			handler: func(context.Context, trace.Span, greetParams) (any, error) {
				return "plain text", nil
			},
			want: "plain text",
		},
		{
			name: "tool result passthrough",
			handler: func(context.Context, trace.Span, greetParams) (any, error) {
				return ErrResult("bad %s", "input"), nil
			},
			want:    "bad input",
			isError: true,
		},
		{
			name: "handler error",
			handler: func(context.Context, trace.Span, greetParams) (any, error) {
				return nil, errors.New("disk full")
			},
			want:    "disk full",
			isError: true,
		},
		{
			name: "unmarshalable value",
			handler: func(context.Context, trace.Span, greetParams) (any, error) {
				return make(chan int), nil
			},
			want:    "failed to format response",
			isError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Execute(context.Background(), "greet", nopLogger(), json.RawMessage(`{"name":"alice"}`), tt.handler)
			if err != nil {
				t.Fatalf("Execute returned Go error: %v", err)
			}
			if result.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v", result.IsError, tt.isError)
			}
			if !strings.Contains(result.Content, tt.want) {
				t.Errorf("content = %q, want substring %q", result.Content, tt.want)
			}
		})
	}
}

func TestExecuteInvalidParams(t *testing.T) {
	called := false
	result, err := Execute(context.Background(), "greet", nopLogger(), json.RawMessage(`{bad`),
		func(context.Context, trace.Span, greetParams) (any, error) {
			called = true
			return nil, nil
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called || !result.IsError || !strings.Contains(result.Content, "invalid params") {
		t.Errorf("called=%v result=%+v", called, result)
	}
}

func TestExecuteRetryableError(t *testing.T) {
	result, _ := Execute(context.Background(), "fetch", nopLogger(), json.RawMessage(`{}`),
		func(context.Context, trace.Span, greetParams) (any, error) {
			return nil, fmt.Errorf("dial: %w", domain.ErrTimeout)
		},
	)
	if !result.IsRetryable || !strings.Contains(result.Content, "may succeed on retry") {
		t.Errorf("result = %+v, want retryable", result)
	}
}

func TestRequireField(t *testing.T) {
	if err := RequireField("path", ""); err == nil || !strings.Contains(err.Error(), "'path' is required") {
		t.Errorf("RequireField empty = %v", err)
	}
	if err := RequireField("path", "a.go"); err != nil {
		t.Errorf("RequireField set = %v", err)
	}
}

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{domain.ErrTimeout, true},
		{fmt.Errorf("wrapped: %w", domain.ErrRateLimit), true},
		{domain.ErrProviderUnavailable, true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Service Unavailable"), true},
		{domain.ErrPathOutsideSandbox, false},
		{domain.ErrToolApprovalDenied, false},
		{errors.New("file not found"), false},
	}
	for _, tt := range tests {
		if got := classifyToolError(tt.err); got != tt.want {
			t.Errorf("classifyToolError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
