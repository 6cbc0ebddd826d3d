package main

import "github.com/alecthomas/kong"

// Globals are flags shared by every command.
type Globals struct {
	Config  string           `short:"c" default:"aura.yaml" env:"AURA_CONFIG" help:"Config file path"`
	Debug   bool             `help:"Log at debug level regardless of config"`
	Version kong.VersionFlag `help:"Show version information"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Agents  AgentsCmd  `cmd:"" help:"List registered agents"`
	Resolve ResolveCmd `cmd:"" help:"Show which agent serves a capability"`
	Run     RunCmd     `cmd:"" help:"Resolve an agent, enrich the prompt and execute it"`
	Index   IndexCmd   `cmd:"" help:"Index directories into the retrieval store"`
	Watch   WatchCmd   `cmd:"" help:"Hot-reload definitions and print registry events"`
	Health  HealthCmd  `cmd:"" help:"Check LLM providers and enrichment services"`
}

// AgentsCmd lists registered agents.
type AgentsCmd struct {
	JSON bool `help:"Print definitions as JSON"`
}

// ResolveCmd resolves a capability and optional language to one agent.
type ResolveCmd struct {
	Capability string `arg:"" help:"Capability, aliases allowed"`
	Language   string `arg:"" optional:"" help:"Language the agent must serve"`
	JSON       bool   `help:"Print the resolution as JSON"`
}

// RunCmd executes one task.
type RunCmd struct {
	Capability string `arg:"" help:"Capability, aliases allowed"`
	Language   string `arg:"" optional:"" help:"Language the agent must serve"`
	Prompt     string `short:"p" required:"" help:"Task prompt, or - to read it from stdin"`

	Workspace string  `short:"w" help:"Working directory for tools and graph scoping"`
	Retrieval bool    `help:"Enrich with retrieval results even if the agent does not ask for it"`
	Graph     bool    `help:"Enrich with graph context even if the agent does not ask for it"`
	TopK      int     `help:"Retrieval result count"`
	MinScore  float64 `help:"Minimum retrieval score (0-1)"`
	Scope     string  `help:"Restrict retrieval to sources under this path"`
	JSON      bool    `help:"Print the full execution output as JSON"`
}

// IndexCmd indexes directories into the retrieval store.
type IndexCmd struct {
	Dirs []string `arg:"" optional:"" help:"Directories to index (default: retrieval.index_dirs)"`
}

// WatchCmd runs the hot-reload loop until interrupted.
type WatchCmd struct{}

// HealthCmd reports collaborator health.
type HealthCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version + " (" + commit + ")",
	}
}
