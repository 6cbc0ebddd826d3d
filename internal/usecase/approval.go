package usecase

import (
	"context"
	"log/slog"
	"sync"

	"aura-agents/internal/domain"
)

// Prompter asks a human to approve a tool call.
type Prompter interface {
	Confirm(ctx context.Context, toolID, description, argsJSON string) (bool, error)
}

// ConfigConfirmer is a domain.ConfirmationService driven by allow/deny lists.
//
// Decision order:
//  1. tool in alwaysDeny: rejected
//  2. tool in alwaysApprove: approved
//  3. a Prompter is configured: the user decides
//  4. otherwise: rejected
//
// Prompts are serialized so concurrent executions never interleave questions.
type ConfigConfirmer struct {
	alwaysApprove map[string]bool
	alwaysDeny    map[string]bool
	prompter      Prompter
	mu            sync.Mutex
	logger        *slog.Logger
}

var _ domain.ConfirmationService = (*ConfigConfirmer)(nil)

// NewConfigConfirmer creates a ConfigConfirmer from allow/deny lists.
// prompter may be nil.
func NewConfigConfirmer(approve, deny []string, prompter Prompter, logger *slog.Logger) *ConfigConfirmer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ConfigConfirmer{
		alwaysApprove: make(map[string]bool, len(approve)),
		alwaysDeny:    make(map[string]bool, len(deny)),
		prompter:      prompter,
		logger:        logger,
	}
	for _, name := range approve {
		c.alwaysApprove[name] = true
	}
	for _, name := range deny {
		c.alwaysDeny[name] = true
	}
	return c
}

// RequestApproval implements domain.ConfirmationService. A policy rejection
// is (false, nil); errors are reserved for a failed prompt.
func (c *ConfigConfirmer) RequestApproval(ctx context.Context, toolID, description, argsJSON string) (bool, error) {
	if c.alwaysDeny[toolID] {
		c.logger.Info("tool call denied by policy", "tool", toolID)
		return false, nil
	}
	if c.alwaysApprove[toolID] {
		return true, nil
	}
	if c.prompter == nil {
		c.logger.Info("tool call needs confirmation but no prompter is available", "tool", toolID)
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := c.prompter.Confirm(ctx, toolID, description, argsJSON)
	if err != nil {
		return false, domain.NewDomainError("ConfigConfirmer.RequestApproval", domain.ErrToolApprovalDenied, err.Error())
	}
	return ok, nil
}
