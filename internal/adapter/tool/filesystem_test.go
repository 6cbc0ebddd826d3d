package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aura-agents/internal/domain"
	"aura-agents/internal/security"
)

func newFSRegistry(t *testing.T, maxSize int64) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	sb, err := security.NewSandbox(root)
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	fs := NewFilesystem(NewLocalFilesystemBackend(), sb, maxSize, nopLogger())
	reg := NewRegistry(nopLogger())
	if err := reg.RegisterAll(fs.Tools()...); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return reg, sb.Root()
}

func run(t *testing.T, reg *Registry, name, workDir, args string) *domain.ToolResult {
	t.Helper()
	result, err := reg.Execute(context.Background(), name, workDir, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return result
}

func TestFilesystemToolDefinitions(t *testing.T) {
	reg, _ := newFSRegistry(t, 0)
	for _, name := range []string{ToolReadFile, ToolWriteFile, ToolListDir, ToolDeleteFile} {
		def, ok := reg.Lookup(name)
		if !ok {
			t.Fatalf("%s not registered", name)
		}
		if !json.Valid(def.Parameters) {
			t.Errorf("%s has invalid schema", name)
		}
		if def.RequiresConfirmation != (name == ToolDeleteFile) {
			t.Errorf("%s RequiresConfirmation = %v", name, def.RequiresConfirmation)
		}
	}
}

func TestFilesystemWriteReadList(t *testing.T) {
	reg, root := newFSRegistry(t, 0)

	w := run(t, reg, ToolWriteFile, "", `{"path":"src/main.go","content":"package main\n"}`)
	if w.IsError {
		t.Fatalf("write_file: %s", w.Content)
	}
	if w.Artifacts["src/main.go"] != "package main\n" {
		t.Errorf("artifacts = %v", w.Artifacts)
	}
	if data, _ := os.ReadFile(filepath.Join(root, "src", "main.go")); string(data) != "package main\n" {
		t.Errorf("file on disk = %q", data)
	}

	r := run(t, reg, ToolReadFile, "", `{"path":"src/main.go"}`)
	if r.IsError || r.Content != "package main\n" {
		t.Errorf("read_file = %+v", r)
	}

	l := run(t, reg, ToolListDir, "", `{}`)
	if l.Content != "src/\n" {
		t.Errorf("list_dir root = %q", l.Content)
	}
	l = run(t, reg, ToolListDir, "", `{"path":"src"}`)
	if l.Content != "main.go\n" {
		t.Errorf("list_dir src = %q", l.Content)
	}
}

func TestFilesystemWorkspaceResolution(t *testing.T) {
	reg, root := newFSRegistry(t, 0)
	os.MkdirAll(filepath.Join(root, "svc"), 0o755)
	os.WriteFile(filepath.Join(root, "svc", "notes.txt"), []byte("svc notes"), 0o644)

	r := run(t, reg, ToolReadFile, filepath.Join(root, "svc"), `{"path":"notes.txt"}`)
	if r.IsError || r.Content != "svc notes" {
		t.Errorf("absolute workspace: %+v", r)
	}

	r = run(t, reg, ToolReadFile, "svc", `{"path":"notes.txt"}`)
	if r.IsError || r.Content != "svc notes" {
		t.Errorf("relative workspace: %+v", r)
	}
}

func TestFilesystemSandboxEscape(t *testing.T) {
	reg, _ := newFSRegistry(t, 0)
	outside := t.TempDir()

	tests := []struct{ tool, args, workDir string }{
		{ToolReadFile, `{"path":"../../etc/passwd"}`, ""},
		{ToolReadFile, `{"path":"` + filepath.Join(outside, "x") + `"}`, ""},
		{ToolWriteFile, `{"path":"../escape.txt","content":"x"}`, ""},
		{ToolListDir, `{}`, outside},
	}
	for _, tt := range tests {
		r := run(t, reg, tt.tool, tt.workDir, tt.args)
		if !r.IsError || !strings.Contains(r.Content, "outside sandbox") {
			t.Errorf("%s %s in %q = %+v, want sandbox rejection", tt.tool, tt.args, tt.workDir, r)
		}
		if r.IsRetryable {
			t.Errorf("sandbox rejection must not be retryable")
		}
	}
}

func TestFilesystemSizeLimit(t *testing.T) {
	reg, root := newFSRegistry(t, 8)
	os.WriteFile(filepath.Join(root, "big.txt"), []byte("0123456789"), 0o644)

	r := run(t, reg, ToolReadFile, "", `{"path":"big.txt"}`)
	if !r.IsError || !strings.Contains(r.Content, "too large") {
		t.Errorf("read big file = %+v", r)
	}
	w := run(t, reg, ToolWriteFile, "", `{"path":"out.txt","content":"0123456789"}`)
	if !w.IsError || !strings.Contains(w.Content, "too large") {
		t.Errorf("write big content = %+v", w)
	}
}

func TestFilesystemReadErrors(t *testing.T) {
	reg, root := newFSRegistry(t, 0)
	os.Mkdir(filepath.Join(root, "dir"), 0o755)

	if r := run(t, reg, ToolReadFile, "", `{"path":"missing.txt"}`); !r.IsError {
		t.Errorf("missing file = %+v", r)
	}
	if r := run(t, reg, ToolReadFile, "", `{"path":"dir"}`); !r.IsError || !strings.Contains(r.Content, "is a directory") {
		t.Errorf("directory read = %+v", r)
	}
	if r := run(t, reg, ToolReadFile, "", `{}`); !r.IsError {
		t.Errorf("missing path argument should fail schema validation: %+v", r)
	}
	if r := run(t, reg, ToolListDir, "", `{"path":"nope"}`); !r.IsError {
		t.Errorf("list missing dir = %+v", r)
	}
}

func TestFilesystemDelete(t *testing.T) {
	reg, root := newFSRegistry(t, 0)
	path := filepath.Join(root, "old.txt")
	os.WriteFile(path, []byte("x"), 0o644)
	os.Mkdir(filepath.Join(root, "keep"), 0o755)

	r := run(t, reg, ToolDeleteFile, "", `{"path":"old.txt"}`)
	if r.IsError || r.Content != "deleted old.txt" {
		t.Errorf("delete_file = %+v", r)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists")
	}

	if r := run(t, reg, ToolDeleteFile, "", `{"path":"keep"}`); !r.IsError {
		t.Errorf("deleting a directory should fail: %+v", r)
	}
	if r := run(t, reg, ToolDeleteFile, "", `{"path":"."}`); !r.IsError {
		t.Errorf("deleting the root should fail: %+v", r)
	}
}
