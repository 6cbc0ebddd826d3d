package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
	"aura-agents/internal/security"
)

// DefaultMaxFileSize caps read_file and write_file payloads.
const DefaultMaxFileSize = 1 << 20

const (
	ToolReadFile   = "read_file"
	ToolWriteFile  = "write_file"
	ToolListDir    = "list_dir"
	ToolDeleteFile = "delete_file"
)

// Filesystem backs the sandboxed file tools. Relative paths resolve against
// the execution workspace when the context carries one, otherwise against
// the sandbox root; nothing outside the sandbox is reachable.
type Filesystem struct {
	backend     FilesystemBackend
	sandbox     *security.Sandbox
	maxFileSize int64
	logger      *slog.Logger
}

// NewFilesystem creates the shared state for the file tools. A non-positive
// maxFileSize uses DefaultMaxFileSize.
func NewFilesystem(backend FilesystemBackend, sandbox *security.Sandbox, maxFileSize int64, logger *slog.Logger) *Filesystem {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Filesystem{backend: backend, sandbox: sandbox, maxFileSize: maxFileSize, logger: logger}
}

// Tools returns read_file, write_file, list_dir and delete_file. delete_file
// requires confirmation.
func (fs *Filesystem) Tools() []domain.Tool {
	return []domain.Tool{
		&fsTool{
			fs:          fs,
			name:        ToolReadFile,
			description: "Read a text file from the workspace",
			params:      `{"type":"object","properties":{"path":{"type":"string","minLength":1,"description":"File path"}},"required":["path"],"additionalProperties":false}`,
			run:         fs.readFile,
		},
		&fsTool{
			fs:          fs,
			name:        ToolWriteFile,
			description: "Create or overwrite a file in the workspace",
			params:      `{"type":"object","properties":{"path":{"type":"string","minLength":1,"description":"File path"},"content":{"type":"string","description":"Full file content"}},"required":["path","content"],"additionalProperties":false}`,
			run:         fs.writeFile,
		},
		&fsTool{
			fs:          fs,
			name:        ToolListDir,
			description: "List the entries of a workspace directory; directories end with /",
			params:      `{"type":"object","properties":{"path":{"type":"string","description":"Directory path, defaults to the workspace"}},"additionalProperties":false}`,
			run:         fs.listDir,
		},
		&fsTool{
			fs:          fs,
			name:        ToolDeleteFile,
			description: "Delete a file from the workspace",
			params:      `{"type":"object","properties":{"path":{"type":"string","minLength":1,"description":"File path"}},"required":["path"],"additionalProperties":false}`,
			confirm:     true,
			run:         fs.deleteFile,
		},
	}
}

type fsParams struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

type fsTool struct {
	fs          *Filesystem
	name        string
	description string
	params      string
	confirm     bool
	run         func(ctx context.Context, span trace.Span, p fsParams) (any, error)
}

func (t *fsTool) Name() string        { return t.name }
func (t *fsTool) Description() string { return t.description }

func (t *fsTool) Definition() domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:                 t.name,
		Description:          t.description,
		Parameters:           json.RawMessage(t.params),
		RequiresConfirmation: t.confirm,
	}
}

func (t *fsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, t.name, t.fs.logger, params, t.run)
}

// resolve maps a requested path to an absolute path inside the sandbox.
func (fs *Filesystem) resolve(ctx context.Context, path string) (string, error) {
	base := fs.sandbox.Root()
	if ws := domain.WorkspaceFromContext(ctx); ws != "" {
		if !filepath.IsAbs(ws) {
			ws = filepath.Join(base, ws)
		}
		base = ws
	}
	if path == "" || path == "." {
		path = base
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	return fs.sandbox.ValidatePath(path)
}

// display renders resolved relative to the sandbox root for messages.
func (fs *Filesystem) display(resolved string) string {
	if rel, err := filepath.Rel(fs.sandbox.Root(), resolved); err == nil {
		return filepath.ToSlash(rel)
	}
	return resolved
}

func (fs *Filesystem) readFile(ctx context.Context, span trace.Span, p fsParams) (any, error) {
	resolved, err := fs.resolve(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("tool.path", fs.display(resolved)))

	info, err := fs.backend.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if info.IsDir() {
		return ErrResult("%s is a directory, use %s", p.Path, ToolListDir), nil
	}
	if info.Size() > fs.maxFileSize {
		return ErrResult("%s is too large (%d bytes, max %d)", p.Path, info.Size(), fs.maxFileSize), nil
	}

	data, err := fs.backend.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	fs.logger.Debug("file read", "path", resolved, "size", len(data))
	return string(data), nil
}

func (fs *Filesystem) writeFile(ctx context.Context, span trace.Span, p fsParams) (any, error) {
	if err := RequireField("path", p.Path); err != nil {
		return ErrResult("%v", err), nil
	}
	if int64(len(p.Content)) > fs.maxFileSize {
		return ErrResult("content too large (%d bytes, max %d)", len(p.Content), fs.maxFileSize), nil
	}
	resolved, err := fs.resolve(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	rel := fs.display(resolved)
	span.SetAttributes(tracer.StringAttr("tool.path", rel))

	if err := fs.backend.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := fs.backend.WriteFile(resolved, []byte(p.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	fs.logger.Debug("file written", "path", resolved, "size", len(p.Content))
	return &domain.ToolResult{
		Content:   fmt.Sprintf("wrote %d bytes to %s", len(p.Content), rel),
		Artifacts: map[string]string{rel: p.Content},
	}, nil
}

func (fs *Filesystem) listDir(ctx context.Context, span trace.Span, p fsParams) (any, error) {
	resolved, err := fs.resolve(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("tool.path", fs.display(resolved)))

	entries, err := fs.backend.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var sb strings.Builder
	for _, entry := range entries {
		sb.WriteString(entry.Name())
		if entry.IsDir() {
			sb.WriteByte('/')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (fs *Filesystem) deleteFile(ctx context.Context, span trace.Span, p fsParams) (any, error) {
	resolved, err := fs.resolve(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	if resolved == fs.sandbox.Root() {
		return ErrResult("refusing to delete the workspace root"), nil
	}
	rel := fs.display(resolved)
	span.SetAttributes(tracer.StringAttr("tool.path", rel))

	info, err := fs.backend.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}
	if info.IsDir() {
		return ErrResult("%s is a directory; only files can be deleted", p.Path), nil
	}
	if err := fs.backend.Remove(resolved); err != nil {
		return nil, fmt.Errorf("delete file: %w", err)
	}

	fs.logger.Info("file deleted", "path", resolved)
	return "deleted " + rel, nil
}
