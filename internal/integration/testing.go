package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aura-agents/internal/adapter/definition"
	"aura-agents/internal/adapter/graph"
	"aura-agents/internal/adapter/llm"
	"aura-agents/internal/adapter/retrieval"
	"aura-agents/internal/adapter/tool"
	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
	"aura-agents/internal/security"
	"aura-agents/internal/usecase"
	"aura-agents/internal/usecase/enrich"
	"aura-agents/internal/usecase/eventbus"
	"aura-agents/internal/usecase/registry"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	TestTimeout   time.Duration
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	cfg := &Config{
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		TestTimeout:   60 * time.Second,
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	return cfg
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// StackOptions selects what NewStack wires.
type StackOptions struct {
	Provider config.ProviderConfig
	// Definitions maps file names to definition text.
	Definitions map[string]string
	// Knowledge maps file names to documents indexed into retrieval.
	Knowledge map[string]string
	GraphURL  string
	Approve   []string
	Deny      []string
}

// Stack is a fully wired system on real adapters rooted in a temp dir.
type Stack struct {
	Root      string
	Workspace string
	Registry  *registry.Registry
	Retrieval *retrieval.Store
	Bus       *eventbus.Bus
}

// NewStack wires definitions, registry, retrieval, graph, tools and the
// engine the same way the CLI does.
func NewStack(t *testing.T, ctx context.Context, opts StackOptions) *Stack {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	agentsDir := filepath.Join(root, "agents")
	knowledgeDir := filepath.Join(root, "knowledge")
	workspace := filepath.Join(root, "workspace")
	for _, dir := range []string{agentsDir, knowledgeDir, workspace} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFiles(t, agentsDir, opts.Definitions)
	writeFiles(t, knowledgeDir, opts.Knowledge)

	providers, err := llm.NewRegistryFromConfig(config.LLMConfig{
		DefaultProvider: opts.Provider.Name,
		Providers:       []config.ProviderConfig{opts.Provider},
	}, log)
	if err != nil {
		t.Fatalf("providers: %v", err)
	}

	store, err := retrieval.New(filepath.Join(root, "retrieval.db"), log, retrieval.Options{})
	if err != nil {
		t.Fatalf("retrieval: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if _, err := store.IndexDir(ctx, knowledgeDir, nil); err != nil {
		t.Fatalf("index knowledge: %v", err)
	}

	ecfg := enrich.Config{Retrieval: store, Logger: log}
	if opts.GraphURL != "" {
		ecfg.Graph = graph.NewClient(opts.GraphURL, graph.WithLogger(log))
	}

	sandbox, err := security.NewSandbox(root)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	tools := tool.NewRegistry(log)
	fsTools := tool.NewFilesystem(tool.NewLocalFilesystemBackend(), sandbox, 0, log).Tools()
	if err := tools.RegisterAll(fsTools...); err != nil {
		t.Fatalf("tools: %v", err)
	}

	bus := eventbus.New(log)
	t.Cleanup(bus.Close)

	factory := usecase.NewAgentFactory(usecase.EngineDeps{
		Providers: providers,
		Tools:     tools,
		Confirmer: usecase.NewConfigConfirmer(opts.Approve, opts.Deny, nil, log),
		Enricher:  enrich.New(ecfg),
		Builder:   usecase.NewContextBuilder(usecase.NewTemplateRenderer()),
		Bus:       bus,
		Logger:    log,
	})
	reg := registry.New(registry.Config{
		Sources: []domain.DefinitionSource{definition.NewDirSource(agentsDir, "", definition.NewParser(log))},
		Factory: factory.Build,
		Bus:     bus,
		Logger:  log,
	})
	reg.Register(usecase.NewChunkerAgent(0, 0), true)
	if _, err := reg.ReloadAll(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	return &Stack{Root: root, Workspace: workspace, Registry: reg, Retrieval: store, Bus: bus}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}
