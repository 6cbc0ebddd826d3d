package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"aura-agents/internal/domain"
	"aura-agents/internal/usecase/registry"
	"aura-agents/internal/usecase/scheduling"
)

// Command output streams; swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
)

func (c *AgentsCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := newRuntime(ctx, g, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	infos := rt.registry.List()
	if c.JSON {
		defs := make([]domain.AgentDefinition, 0, len(infos))
		for _, info := range infos {
			defs = append(defs, info.Agent.Definition())
		}
		return writeJSON(defs)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tCAPABILITIES\tLANGUAGES\tSOURCE")
	for _, info := range infos {
		def := info.Agent.Definition()
		source := def.SourcePath
		if info.Pinned {
			source = "(built-in)"
		}
		langs := strings.Join(def.Languages, ",")
		if langs == "" {
			langs = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", def.ID, def.Priority, strings.Join(def.Capabilities, ","), langs, source)
	}
	return tw.Flush()
}

func (c *ResolveCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := newRuntime(ctx, g, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.registry.Resolve(c.Capability, c.Language)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(resolutionView(res))
	}
	fmt.Fprintf(stdout, "%s (strategy %s, capability %s)\n", res.Agent.ID(), res.Strategy, res.Capability)
	return nil
}

type resolutionJSON struct {
	AgentID    string `json:"agent_id"`
	Strategy   string `json:"strategy"`
	Capability string `json:"capability"`
	Priority   int    `json:"priority"`
}

func resolutionView(res registry.Resolution) resolutionJSON {
	return resolutionJSON{
		AgentID:    res.Agent.ID(),
		Strategy:   res.Strategy,
		Capability: res.Capability,
		Priority:   res.Agent.Definition().Priority,
	}
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	prompt, err := c.readPrompt()
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, g, runtimeOptions{tools: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if d := rt.cfg.Engine.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := rt.registry.Resolve(c.Capability, c.Language)
	if err != nil {
		return err
	}
	rt.log.Info("agent resolved", "agent_id", res.Agent.ID(), "strategy", res.Strategy, "capability", res.Capability)

	ec := domain.ExecutionContext{Prompt: prompt}
	if c.Workspace != "" {
		ws, err := filepath.Abs(c.Workspace)
		if err != nil {
			return domain.NewDomainError("run", domain.ErrValidationFailed, err.Error())
		}
		ec.Workspace = ws
	}

	// Explicit flags enrich here; otherwise the engine follows the definition.
	def := res.Agent.Definition()
	if c.Retrieval || c.Graph {
		opts := def.Retrieval
		if c.TopK > 0 {
			opts.TopK = c.TopK
		}
		if c.MinScore > 0 {
			opts.MinScore = c.MinScore
		}
		if c.Scope != "" {
			opts.SourceScope = c.Scope
		}
		ec = rt.enricher.Enrich(ctx, ec, c.Retrieval || def.UseRetrieval, c.Graph || def.UseGraph, &opts)
	}

	out, err := res.Agent.Execute(ctx, ec)
	if err != nil {
		return err
	}
	if c.JSON {
		return writeJSON(out)
	}

	fmt.Fprintln(stdout, out.Content)
	printRunSummary(stderr, out)
	return nil
}

func (c *RunCmd) readPrompt() (string, error) {
	prompt := c.Prompt
	if prompt == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", domain.NewDomainError("run", domain.ErrValidationFailed, "empty prompt")
	}
	return prompt, nil
}

func printRunSummary(w io.Writer, out *domain.ExecutionOutput) {
	fmt.Fprintf(w, "\n-- %s: %d iteration(s), %d tokens, execution %s\n", out.AgentID, out.Iterations, out.TokensUsed, out.ExecutionID)
	for _, call := range out.ToolCalls {
		state := "ok"
		switch {
		case call.Rejected:
			state = "rejected"
		case call.Failed:
			state = "failed"
		}
		fmt.Fprintf(w, "   tool %s %s\n", call.Name, state)
	}
	if len(out.Artifacts) > 0 {
		names := make([]string, 0, len(out.Artifacts))
		for name := range out.Artifacts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "   artifacts: %s\n", strings.Join(names, ", "))
	}
}

func (c *IndexCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := newRuntime(ctx, g, runtimeOptions{forceRetrieval: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	dirs := c.Dirs
	if len(dirs) == 0 {
		dirs = rt.cfg.Retrieval.IndexDirs
	}
	if len(dirs) == 0 {
		return domain.NewDomainError("index", domain.ErrValidationFailed, "no directories given and retrieval.index_dirs is empty")
	}

	report, err := rt.retrieval.IndexDirs(ctx, dirs, rt.cfg.Retrieval.Extensions)
	fmt.Fprintf(stdout, "indexed %d, unchanged %d, removed %d, skipped %d (%d chunks)\n",
		report.Indexed, report.Unchanged, report.Removed, report.Skipped, report.Chunks)
	if err != nil {
		return err
	}

	sources, chunks, err := rt.retrieval.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "store %s: %d sources, %d chunks\n", rt.cfg.Retrieval.DBPath, sources, chunks)
	return nil
}

func (c *WatchCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := newRuntime(ctx, g, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	unsubscribe := rt.bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
		fmt.Fprintf(stdout, "%s %-18s %s\n", ev.Timestamp.Format(time.TimeOnly), ev.Type, ev.Payload)
	})
	defer unsubscribe()

	watcher := registry.NewWatcher(rt.registry, rt.cfg.Registry.Debounce, rt.log)
	if err := watcher.Start(ctx); err != nil {
		return err
	}

	scheduler, err := rt.newScheduler()
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(stderr, "watching %d agent(s); press Ctrl-C to stop\n", rt.registry.Len())
	<-ctx.Done()

	scheduler.Stop()
	watcher.Wait()
	return nil
}

// newScheduler registers the periodic resync and reindex tasks that are
// configured.
func (rt *runtime) newScheduler() (*scheduling.Scheduler, error) {
	s := scheduling.NewScheduler(rt.log)
	s.RegisterAction(scheduling.ActionRegistryResync, func(ctx context.Context) error {
		_, err := rt.registry.ReloadAll(ctx)
		return err
	})
	s.RegisterAction(scheduling.ActionRetrievalReindex, rt.reindex)

	if sched := rt.cfg.Registry.ResyncSchedule; sched != "" {
		if err := s.AddTask(scheduling.Task{Name: "registry-resync", Schedule: sched, Action: scheduling.ActionRegistryResync}); err != nil {
			return nil, err
		}
	}
	if sched := rt.cfg.Retrieval.ReindexSchedule; sched != "" && rt.retrieval != nil && len(rt.cfg.Retrieval.IndexDirs) > 0 {
		if err := s.AddTask(scheduling.Task{Name: "retrieval-reindex", Schedule: sched, Action: scheduling.ActionRetrievalReindex}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (c *HealthCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := newRuntime(ctx, g, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	var unhealthyDefault string
	for _, st := range rt.providers.HealthCheck(ctx) {
		marker := " "
		if st.Default {
			marker = "*"
			if !st.Healthy {
				unhealthyDefault = st.Name
			}
		}
		fmt.Fprintf(stdout, "%s llm   %s\n", marker, st)
	}

	if rt.graph != nil {
		state := "healthy"
		if !rt.graph.IsHealthy(ctx) {
			state = "unhealthy"
		}
		fmt.Fprintf(stdout, "  graph %s %s\n", rt.cfg.Graph.URL, state)
	}
	if rt.retrieval != nil {
		sources, chunks, err := rt.retrieval.Stats(ctx)
		if err != nil {
			fmt.Fprintf(stdout, "  retrieval %s error: %v\n", rt.cfg.Retrieval.DBPath, err)
		} else {
			fmt.Fprintf(stdout, "  retrieval %s %d sources, %d chunks\n", rt.cfg.Retrieval.DBPath, sources, chunks)
		}
	}
	fmt.Fprintf(stdout, "  agents %d registered\n", rt.registry.Len())

	if unhealthyDefault != "" {
		return domain.NewDomainError("health", domain.ErrProviderUnavailable, "default provider "+unhealthyDefault+" is unhealthy")
	}
	return nil
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
