package domain

import "context"

type ctxKey string

const (
	workspaceCtxKey ctxKey = "workspace"
	executionCtxKey ctxKey = "execution_id"
)

// ContextWithWorkspace returns a new context carrying the working directory
// tools resolve relative paths against.
func ContextWithWorkspace(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, workspaceCtxKey, dir)
}

// WorkspaceFromContext extracts the working directory from the context.
// Returns empty string if not set.
func WorkspaceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workspaceCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithExecutionID returns a new context carrying the execution ID (ULID).
func ContextWithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionCtxKey, id)
}

// ExecutionIDFromContext extracts the execution ID from the context.
func ExecutionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(executionCtxKey).(string); ok {
		return v
	}
	return ""
}
