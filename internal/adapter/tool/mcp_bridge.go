package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/config"
	"aura-agents/internal/infra/tracer"
)

// mcpCallTimeout bounds a single MCP tool call.
const mcpCallTimeout = 30 * time.Second

// MCPBridge connects to MCP servers and exposes their tools as domain.Tool
// values named mcp_<server>_<tool>.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

type mcpServerConn struct {
	name    string
	confirm bool
	client  mcpClient
}

// mcpClient is the slice of the mcp-go client the bridge uses.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// NewMCPBridge connects to every configured server and discovers its tools.
// A server that cannot be reached fails the bridge; a server whose listing
// fails is skipped unless every server fails.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &MCPBridge{logger: logger}

	for _, srv := range servers {
		conn, err := b.connectServer(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.discoverTools(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}
	return b, nil
}

func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discoverTools(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MCPBridge) connectServer(ctx context.Context, srv config.MCPServer) (*mcpServerConn, error) {
	var c *mcpclient.Client
	switch srv.Transport {
	case "stdio":
		sc, err := mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
		c = sc
	case "http":
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, domain.NewDomainError("MCPBridge.connect", domain.ErrValidationFailed,
			fmt.Sprintf("unsupported transport %q", srv.Transport))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "aura-agents",
		Version: "1.0.0",
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("initialize", err)
	}

	b.logger.Info("mcp server connected", "server", srv.Name, "transport", srv.Transport)
	return &mcpServerConn{name: srv.Name, confirm: srv.Confirm, client: c}, nil
}

func (b *MCPBridge) discoverTools(ctx context.Context) error {
	var errs []error
	ok := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping", "server", srv.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", srv.name, err))
			continue
		}

		for _, t := range result.Tools {
			adapter := newMCPToolAdapter(srv, t, b.logger)
			b.tools = append(b.tools, adapter)
			b.logger.Debug("mcp tool discovered", "server", srv.name, "tool", t.Name, "name", adapter.Name())
		}
		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
		ok++
	}

	if ok == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %w", errors.Join(errs...))
	}
	return nil
}

// Tools returns the discovered tools in discovery order.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// Close shuts down every server connection.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

type mcpToolAdapter struct {
	server   string
	confirm  bool
	client   mcpClient
	mcpTool  mcp.Tool
	fullName string
	logger   *slog.Logger
}

func newMCPToolAdapter(srv mcpServerConn, t mcp.Tool, logger *slog.Logger) *mcpToolAdapter {
	return &mcpToolAdapter{
		server:   srv.name,
		confirm:  srv.confirm,
		client:   srv.client,
		mcpTool:  t,
		fullName: fmt.Sprintf("mcp_%s_%s", sanitizeName(srv.name), sanitizeName(t.Name)),
		logger:   logger,
	}
}

func (a *mcpToolAdapter) Name() string { return a.fullName }

func (a *mcpToolAdapter) Description() string {
	if a.mcpTool.Description != "" {
		return a.mcpTool.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", a.mcpTool.Name, a.server)
}

func (a *mcpToolAdapter) Definition() domain.ToolDefinition {
	params := json.RawMessage(`{"type":"object"}`)
	if a.mcpTool.InputSchema.Properties != nil || a.mcpTool.InputSchema.Required != nil {
		if data, err := json.Marshal(a.mcpTool.InputSchema); err == nil {
			params = data
		}
	}
	return domain.ToolDefinition{
		Name:                 a.fullName,
		Description:          a.Description(),
		Parameters:           params,
		RequiresConfirmation: a.confirm,
	}
}

func (a *mcpToolAdapter) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+a.fullName,
		trace.WithAttributes(
			tracer.StringAttr("tool.name", a.fullName),
			tracer.StringAttr("mcp.server", a.server),
		),
	)
	defer span.End()

	var args map[string]any
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &args); err != nil {
			tracer.RecordError(span, err)
			return ErrResult("invalid arguments: %v", err), nil
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.mcpTool.Name
	callReq.Params.Arguments = args

	a.logger.Debug("mcp tool call", "server", a.server, "tool", a.mcpTool.Name)

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		tracer.RecordError(span, err)
		return &domain.ToolResult{
			Content:     fmt.Sprintf("MCP tool error: %v", err),
			IsError:     true,
			IsRetryable: true,
		}, nil
	}

	tracer.SetOK(span)
	return &domain.ToolResult{
		Content: extractMCPContent(result),
		IsError: result.IsError,
	}, nil
}

// extractMCPContent joins text parts and JSON-encodes anything else.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
