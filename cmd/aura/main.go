// Command aura routes tasks to markdown-defined LLM agents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"aura-agents/internal/domain"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("aura"),
		kong.Description("Capability-routed LLM agents with retrieval and tool calling."),
		kong.UsageOnError(),
		kongVars(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aura %s: %v\n", kctx.Command(), err)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps an error to a process exit status by taxonomy category.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch domain.CategoryOf(err) {
	case domain.ErrCancelled:
		return 130
	case domain.ErrValidationFailed:
		return 2
	case domain.ErrNotFound:
		return 3
	case domain.ErrProviderUnavailable, domain.ErrModelNotFound, domain.ErrTimeout:
		return 4
	}
	if errors.Is(err, domain.ErrConfigLoad) {
		return 2
	}
	return 1
}
