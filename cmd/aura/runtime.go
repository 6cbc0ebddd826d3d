package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"aura-agents/internal/adapter/confirm"
	"aura-agents/internal/adapter/definition"
	"aura-agents/internal/adapter/graph"
	"aura-agents/internal/adapter/llm"
	"aura-agents/internal/adapter/retrieval"
	"aura-agents/internal/adapter/tool"
	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
	"aura-agents/internal/infra/logger"
	"aura-agents/internal/infra/tracer"
	"aura-agents/internal/security"
	"aura-agents/internal/usecase"
	"aura-agents/internal/usecase/enrich"
	"aura-agents/internal/usecase/eventbus"
	"aura-agents/internal/usecase/registry"
)

// runtimeOptions selects the optional parts a command needs.
type runtimeOptions struct {
	tools bool // build the tool registry and connect MCP servers
	// forceRetrieval opens the retrieval store even when retrieval.enabled is false.
	forceRetrieval bool
}

// runtime is the wired application shared by all commands.
type runtime struct {
	cfg       *config.Config
	log       *slog.Logger
	bus       *eventbus.Bus
	providers *llm.Registry
	tools     *tool.Registry
	retrieval *retrieval.Store
	graph     *graph.Client
	enricher  *enrich.Pipeline
	registry  *registry.Registry

	closers []func()
}

func newRuntime(ctx context.Context, g *Globals, opts runtimeOptions) (_ *runtime, err error) {
	// 1. Config
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	if g.Debug {
		cfg.Logger.Level = "debug"
	}

	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	rt.log = log
	rt.closers = append(rt.closers, func() { logCloser() })

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	rt.closers = append(rt.closers, func() { tracerShutdown(context.Background()) })

	// 3. Event bus
	rt.bus = eventbus.New(log)
	rt.closers = append(rt.closers, rt.bus.Close)

	// 4. LLM providers
	rt.providers, err = llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	// 5. Tools and confirmation
	var confirmer domain.ConfirmationService
	if opts.tools {
		if err := rt.initTools(ctx); err != nil {
			return nil, fmt.Errorf("tools: %w", err)
		}
		var prompter usecase.Prompter
		if cfg.Tools.Confirm.Interactive {
			prompter = confirm.NewTerminal(stdin, stderr)
		}
		confirmer = usecase.NewConfigConfirmer(cfg.Tools.Confirm.AlwaysApprove, cfg.Tools.Confirm.AlwaysDeny, prompter, log)
	}

	// 6. Enrichment services
	if err := rt.initEnrichment(opts.forceRetrieval); err != nil {
		return nil, err
	}

	// 7. Engine and registry
	deps := usecase.EngineDeps{
		Providers:     rt.providers,
		Confirmer:     confirmer,
		Enricher:      rt.enricher,
		Builder:       usecase.NewContextBuilder(usecase.NewTemplateRenderer()),
		Bus:           rt.bus,
		Logger:        log,
		MaxIterations: cfg.Engine.MaxIterations,
	}
	if rt.tools != nil {
		deps.Tools = rt.tools
	}
	factory := usecase.NewAgentFactory(deps)

	parser := definition.NewParser(log)
	sources := make([]domain.DefinitionSource, 0, len(cfg.Registry.Dirs))
	for _, dir := range cfg.Registry.Dirs {
		sources = append(sources, definition.NewDirSource(dir, cfg.Registry.Extension, parser))
	}
	rt.registry = registry.New(registry.Config{
		Sources: sources,
		Factory: factory.Build,
		Bus:     rt.bus,
		Logger:  log,
	})
	rt.registry.Register(usecase.NewChunkerAgent(cfg.Engine.ChunkSize, cfg.Engine.ChunkOverlap), true)

	if _, err := rt.registry.ReloadAll(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn("initial definition load incomplete", "error", err)
	}
	return rt, nil
}

// initTools registers the sandboxed filesystem tools and any MCP tools.
// Tools named in always_deny are gated so the deny list applies to them.
func (rt *runtime) initTools(ctx context.Context) error {
	cfg := rt.cfg.Tools
	sandbox, err := security.NewSandbox(cfg.SandboxRoot)
	if err != nil {
		return err
	}

	tools := tool.NewFilesystem(tool.NewLocalFilesystemBackend(), sandbox, cfg.MaxFileSize, rt.log).Tools()

	if len(cfg.MCPServers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.MCPServers, rt.log)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			rt.log.Warn("mcp tools unavailable", "error", err)
		} else {
			rt.closers = append(rt.closers, bridge.Close)
			tools = append(tools, bridge.Tools()...)
		}
	}

	denied := make(map[string]bool, len(cfg.Confirm.AlwaysDeny))
	for _, name := range cfg.Confirm.AlwaysDeny {
		denied[name] = true
	}
	for i, t := range tools {
		if denied[t.Name()] && !t.Definition().RequiresConfirmation {
			tools[i] = tool.RequireConfirmation(t)
		}
	}

	rt.tools = tool.NewRegistry(rt.log)
	return rt.tools.RegisterAll(tools...)
}

func (rt *runtime) initEnrichment(forceRetrieval bool) error {
	cfg := rt.cfg
	ecfg := enrich.Config{
		Defaults: domain.RetrievalOptions{
			TopK:     cfg.Enrichment.TopK,
			MinScore: cfg.Enrichment.MinScore,
		},
		Timeout: cfg.Enrichment.Timeout,
		Logger:  rt.log,
	}

	if cfg.Retrieval.Enabled || forceRetrieval {
		if err := os.MkdirAll(filepath.Dir(cfg.Retrieval.DBPath), 0o700); err != nil {
			return fmt.Errorf("retrieval: %w", err)
		}
		store, err := retrieval.New(cfg.Retrieval.DBPath, rt.log, retrieval.Options{
			ChunkSize:    cfg.Engine.ChunkSize,
			ChunkOverlap: cfg.Engine.ChunkOverlap,
		})
		if err != nil {
			return fmt.Errorf("retrieval: %w", err)
		}
		rt.retrieval = store
		rt.closers = append(rt.closers, func() { store.Close() })
		ecfg.Retrieval = store
	}

	if cfg.Graph.URL != "" {
		rt.graph = graph.NewClient(cfg.Graph.URL,
			graph.WithAPIKey(cfg.Graph.APIKey),
			graph.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout}),
			graph.WithLogger(rt.log),
		)
		ecfg.Graph = rt.graph
	}

	rt.enricher = enrich.New(ecfg)
	return nil
}

// reindex refreshes the retrieval store from the configured directories.
func (rt *runtime) reindex(ctx context.Context) error {
	if rt.retrieval == nil {
		return errors.New("retrieval store not open")
	}
	_, err := rt.retrieval.IndexDirs(ctx, rt.cfg.Retrieval.IndexDirs, rt.cfg.Retrieval.Extensions)
	return err
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
