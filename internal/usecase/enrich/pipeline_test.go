package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-agents/internal/domain"
)

type fakeRetrieval struct {
	results []domain.RetrievalResult
	err     error
	delay   time.Duration
	gotOpts domain.RetrievalOptions
}

func (f *fakeRetrieval) Query(ctx context.Context, _ string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	f.gotOpts = opts
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.results, f.err
}

type fakeGraph struct {
	res          *domain.GraphResult
	err          error
	gotWorkspace string
}

func (f *fakeGraph) Enrich(_ context.Context, _ string, workspace string) (*domain.GraphResult, error) {
	f.gotWorkspace = workspace
	return f.res, f.err
}

func sampleResults() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{Text: "low", Score: 0.2, SourcePath: "c.md"},
		{Text: "high", Score: 0.875, SourcePath: "a.md"},
		{Text: "mid", Score: 0.5},
	}
}

func TestEnrichRetrievalAndGraph(t *testing.T) {
	ret := &fakeRetrieval{results: sampleResults()}
	gr := &fakeGraph{res: &domain.GraphResult{Summary: "class Foo calls Bar"}}
	p := New(Config{Retrieval: ret, Graph: gr})

	ec := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "foo", Workspace: "/ws"}, true, true, nil)

	assert.True(t, ec.Enriched)
	require.Len(t, ec.RetrievalResults, 3)
	assert.Equal(t, "high", ec.RetrievalResults[0].Text)
	assert.Equal(t, "low", ec.RetrievalResults[2].Text)
	assert.Equal(t, "class Foo calls Bar", ec.GraphText)
	assert.Equal(t, "/ws", gr.gotWorkspace)
	assert.Equal(t, DefaultTopK, ret.gotOpts.TopK)

	want := "--- Result 1 | Source: a.md | Relevance: 87.5% ---\nhigh\n--- End Result 1 ---\n\n" +
		"--- Result 2 | Relevance: 50% ---\nmid\n--- End Result 2 ---\n\n" +
		"--- Result 3 | Source: c.md | Relevance: 20% ---\nlow\n--- End Result 3 ---"
	assert.Equal(t, want, ec.RetrievalText)
}

func TestEnrichRetrievalFailureIsOmitted(t *testing.T) {
	ret := &fakeRetrieval{err: errors.New("index offline")}
	gr := &fakeGraph{res: &domain.GraphResult{Summary: "graph ok"}}
	p := New(Config{Retrieval: ret, Graph: gr})

	in := domain.ExecutionContext{Prompt: "p", Properties: map[string]any{"k": "v"}}
	ec := p.Enrich(context.Background(), in, true, true, nil)

	assert.Empty(t, ec.RetrievalText)
	assert.Nil(t, ec.RetrievalResults)
	assert.Equal(t, "graph ok", ec.GraphText)
	assert.Equal(t, "p", ec.Prompt)
	assert.Equal(t, "v", ec.Properties["k"])
}

func TestEnrichGraphFailureIsOmitted(t *testing.T) {
	p := New(Config{
		Retrieval: &fakeRetrieval{results: sampleResults()},
		Graph:     &fakeGraph{err: errors.New("graph down")},
	})
	ec := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "p"}, true, true, nil)
	assert.NotEmpty(t, ec.RetrievalText)
	assert.Empty(t, ec.GraphText)
	assert.Nil(t, ec.Graph)
}

func TestEnrichRespectsFlagsAndNilServices(t *testing.T) {
	ret := &fakeRetrieval{results: sampleResults()}
	p := New(Config{Retrieval: ret})

	ec := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "p"}, false, true, nil)
	assert.True(t, ec.Enriched)
	assert.Empty(t, ec.RetrievalText)
	assert.Empty(t, ec.GraphText)
}

func TestEnrichOptionsOverrideDefaults(t *testing.T) {
	ret := &fakeRetrieval{results: sampleResults()}
	p := New(Config{Retrieval: ret, Defaults: domain.RetrievalOptions{TopK: 10, MinScore: 0.1}})

	ec := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "p"}, true, false,
		&domain.RetrievalOptions{TopK: 1, MinScore: 0.3, SourceScope: "docs/"})

	assert.Equal(t, domain.RetrievalOptions{TopK: 1, MinScore: 0.3, SourceScope: "docs/"}, ret.gotOpts)
	require.Len(t, ec.RetrievalResults, 1)
	assert.Equal(t, "high", ec.RetrievalResults[0].Text)
}

func TestEnrichIsDeterministic(t *testing.T) {
	p := New(Config{
		Retrieval: &fakeRetrieval{results: []domain.RetrievalResult{
			{Text: "a", Score: 0.5}, {Text: "b", Score: 0.5}, {Text: "c", Score: 0.9},
		}},
		Graph: &fakeGraph{res: &domain.GraphResult{Nodes: []domain.GraphNode{{Kind: "type", Name: "Foo"}}}},
	})
	first := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "q"}, true, true, nil)
	for i := 0; i < 20; i++ {
		again := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "q"}, true, true, nil)
		require.Equal(t, first, again)
	}
	assert.True(t, strings.Index(first.RetrievalText, "\na\n") < strings.Index(first.RetrievalText, "\nb\n"))
}

func TestRankResultsTieBreaksBySource(t *testing.T) {
	in := []domain.RetrievalResult{
		{Text: "z-first", Score: 0.5, SourcePath: "z.md"},
		{Text: "top", Score: 0.9, SourcePath: "y.md"},
		{Text: "a-second", Score: 0.5, SourcePath: "a.md"},
		{Text: "a-first", Score: 0.5, SourcePath: "a.md"},
		{Text: "dropped", Score: 0.1, SourcePath: "a.md"},
	}
	got := rankResults(in, 0, 0.2)

	texts := make([]string, len(got))
	for i, r := range got {
		texts[i] = r.Text
	}
	assert.Equal(t, []string{"top", "a-second", "a-first", "z-first"}, texts)

	reversed := make([]domain.RetrievalResult, len(in))
	for i, r := range in {
		reversed[len(in)-1-i] = r
	}
	again := rankResults(reversed, 3, 0.2)
	require.Len(t, again, 3)
	assert.Equal(t, "top", again[0].Text)
	assert.Equal(t, "a.md", again[1].SourcePath)
	assert.Equal(t, "a.md", again[2].SourcePath)
}

func TestEnrichTimeoutDegrades(t *testing.T) {
	p := New(Config{
		Retrieval: &fakeRetrieval{results: sampleResults(), delay: time.Second},
		Timeout:   20 * time.Millisecond,
	})
	start := time.Now()
	ec := p.Enrich(context.Background(), domain.ExecutionContext{Prompt: "p"}, true, false, nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, ec.RetrievalText)
	assert.True(t, ec.Enriched)
}

func TestFormatGraphListing(t *testing.T) {
	g := &domain.GraphResult{
		Nodes: []domain.GraphNode{{ID: "1", Kind: "class", Name: "Foo", Path: "src/foo.cs"}, {ID: "2", Kind: "method", Name: "Bar"}},
		Edges: []domain.GraphEdge{{From: "Foo", To: "Bar", Kind: "calls"}},
	}
	want := "Nodes:\n- class Foo (src/foo.cs)\n- method Bar\nEdges:\n- Foo -calls-> Bar"
	assert.Equal(t, want, FormatGraph(g))
	assert.Equal(t, "", FormatGraph(nil))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "87.5", percent(0.875))
	assert.Equal(t, "100", percent(1))
	assert.Equal(t, "33.33", percent(1.0/3))
}
