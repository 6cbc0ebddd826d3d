// Package graph is an HTTP client for an external structural-graph service
// that returns code structure (types, functions, files and their relations)
// relevant to a query.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
)

// DefaultTimeout bounds a single request when no client is supplied.
const DefaultTimeout = 10 * time.Second

const maxResponseBody = 4 * 1024 * 1024

// maxSummaryNodes caps the summary synthesised from raw nodes.
const maxSummaryNodes = 50

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Client) { g.client = c }
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(g *Client) { g.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Client) { g.logger = l }
}

// Client implements domain.GraphService over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ domain.GraphService = (*Client)(nil)

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type enrichRequest struct {
	Query     string `json:"query"`
	Workspace string `json:"workspace,omitempty"`
}

// Enrich implements domain.GraphService. When the service returns nodes but
// no summary, a summary is synthesised from the nodes.
func (c *Client) Enrich(ctx context.Context, text, workspace string) (*domain.GraphResult, error) {
	ctx, span := tracer.StartSpan(ctx, "graph.enrich",
		trace.WithAttributes(tracer.StringAttr("graph.workspace", workspace)),
	)
	defer span.End()

	body, err := json.Marshal(enrichRequest{Query: text, Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("marshal graph request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/enrich", body)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var result domain.GraphResult
	if err := json.Unmarshal(resp, &result); err != nil {
		err = domain.NewDomainError("Graph.Enrich", domain.ErrProviderUnavailable, "invalid response: "+err.Error())
		tracer.RecordError(span, err)
		return nil, err
	}
	if strings.TrimSpace(result.Summary) == "" && len(result.Nodes) > 0 {
		result.Summary = summarize(result.Nodes, result.Edges)
	}

	span.SetAttributes(
		tracer.IntAttr("graph.nodes", len(result.Nodes)),
		tracer.IntAttr("graph.edges", len(result.Edges)),
	)
	tracer.SetOK(span)
	c.logger.Debug("graph enrich completed", "nodes", len(result.Nodes), "edges", len(result.Edges))
	return &result, nil
}

// IsHealthy reports whether the service answers its health endpoint.
func (c *Client) IsHealthy(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domain.NewDomainError("Graph.Request", domain.ErrValidationFailed, err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.Classify("Graph.Request", ctxErr)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, domain.NewDomainError("Graph.Request", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, domain.ErrTimeout), err.Error())
		}
		return nil, domain.NewDomainError("Graph.Request", domain.ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.NewDomainError("Graph.Request", domain.ErrProviderUnavailable, "read response: "+err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewDomainError("Graph.Request", domain.ErrNotFound, path)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewDomainError("Graph.Request", domain.ErrProviderUnavailable, fmt.Sprintf("status %d", resp.StatusCode))
	default:
		return nil, domain.NewDomainError("Graph.Request", domain.ErrExecutionFailed,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}
}

// summarize renders one line per node plus its outgoing edges.
func summarize(nodes []domain.GraphNode, edges []domain.GraphEdge) string {
	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}
	out := make(map[string][]string)
	for _, e := range edges {
		if to, ok := names[e.To]; ok {
			out[e.From] = append(out[e.From], e.Kind+" "+to)
		}
	}

	var b strings.Builder
	for i, n := range nodes {
		if i == maxSummaryNodes {
			fmt.Fprintf(&b, "... %d more\n", len(nodes)-i)
			break
		}
		fmt.Fprintf(&b, "- %s %s", n.Kind, n.Name)
		if n.Path != "" {
			fmt.Fprintf(&b, " (%s)", n.Path)
		}
		if rel := out[n.ID]; len(rel) > 0 {
			b.WriteString(": " + strings.Join(rel, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
