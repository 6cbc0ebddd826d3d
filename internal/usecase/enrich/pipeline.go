// Package enrich attaches retrieved passages and structural graph context to
// an execution before the model sees it. Enrichment is best-effort: a failing
// source is logged and omitted.
package enrich

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
)

// DefaultTopK is used when neither the caller nor the config sets TopK.
const DefaultTopK = 5

// Config wires a Pipeline. Either service may be nil.
type Config struct {
	Retrieval domain.RetrievalService
	Graph     domain.GraphService
	Defaults  domain.RetrievalOptions
	// Timeout bounds each individual query. Zero means no extra bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Pipeline implements domain.Enricher.
type Pipeline struct {
	retrieval domain.RetrievalService
	graph     domain.GraphService
	defaults  domain.RetrievalOptions
	timeout   time.Duration
	logger    *slog.Logger
}

var _ domain.Enricher = (*Pipeline)(nil)

// New creates an enrichment pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := cfg.Defaults
	if defaults.TopK <= 0 {
		defaults.TopK = DefaultTopK
	}
	return &Pipeline{
		retrieval: cfg.Retrieval,
		graph:     cfg.Graph,
		defaults:  defaults,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Enrich returns a copy of ec with retrieval and graph context attached.
// The two queries run concurrently; neither can fail the call.
func (p *Pipeline) Enrich(ctx context.Context, ec domain.ExecutionContext, useRetrieval, useGraph bool, opts *domain.RetrievalOptions) domain.ExecutionContext {
	out := ec
	out.Enriched = true

	eff := p.options(opts)

	var (
		results []domain.RetrievalResult
		graph   *domain.GraphResult
	)

	// Goroutines report failures by logging and returning nil so one source
	// never cancels the other.
	var g errgroup.Group
	if useRetrieval && p.retrieval != nil {
		g.Go(func() error {
			results = p.queryRetrieval(ctx, ec.Prompt, eff)
			return nil
		})
	}
	if useGraph && p.graph != nil {
		g.Go(func() error {
			graph = p.queryGraph(ctx, ec.Prompt, ec.Workspace)
			return nil
		})
	}
	_ = g.Wait()

	if results != nil {
		ranked := rankResults(results, eff.TopK, eff.MinScore)
		out.RetrievalResults = ranked
		out.RetrievalText = FormatRetrieval(ranked)
	}
	if graph != nil {
		out.Graph = graph
		out.GraphText = FormatGraph(graph)
	}
	return out
}

func (p *Pipeline) options(opts *domain.RetrievalOptions) domain.RetrievalOptions {
	eff := p.defaults
	if opts == nil {
		return eff
	}
	if opts.TopK > 0 {
		eff.TopK = opts.TopK
	}
	if opts.MinScore > 0 {
		eff.MinScore = opts.MinScore
	}
	if opts.SourceScope != "" {
		eff.SourceScope = opts.SourceScope
	}
	return eff
}

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return ctx, func() {}
}

func (p *Pipeline) queryRetrieval(ctx context.Context, text string, opts domain.RetrievalOptions) []domain.RetrievalResult {
	ctx, span := tracer.StartSpan(ctx, "enrich.retrieval",
		trace.WithAttributes(
			tracer.IntAttr("retrieval.top_k", opts.TopK),
			tracer.StringAttr("retrieval.scope", opts.SourceScope),
		),
	)
	defer span.End()

	ctx, cancel := p.bound(ctx)
	defer cancel()

	results, err := p.retrieval.Query(ctx, text, opts)
	if err != nil {
		tracer.RecordError(span, err)
		p.logger.Warn("retrieval enrichment failed, continuing without it", "error", err)
		return nil
	}
	span.SetAttributes(tracer.IntAttr("retrieval.results", len(results)))
	tracer.SetOK(span)
	if results == nil {
		results = []domain.RetrievalResult{}
	}
	return results
}

func (p *Pipeline) queryGraph(ctx context.Context, text, workspace string) *domain.GraphResult {
	ctx, span := tracer.StartSpan(ctx, "enrich.graph")
	defer span.End()

	ctx, cancel := p.bound(ctx)
	defer cancel()

	res, err := p.graph.Enrich(ctx, text, workspace)
	if err != nil {
		tracer.RecordError(span, err)
		p.logger.Warn("graph enrichment failed, continuing without it", "error", err)
		return nil
	}
	tracer.SetOK(span)
	return res
}
