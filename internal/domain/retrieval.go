package domain

import "context"

// RetrievalOptions tunes a retrieval query. Zero values mean "use defaults".
type RetrievalOptions struct {
	TopK        int     `json:"top_k,omitempty"`
	MinScore    float64 `json:"min_score,omitempty"`
	SourceScope string  `json:"source_scope,omitempty"`
}

// RetrievalResult is one ranked hit from the retrieval service.
type RetrievalResult struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	SourcePath string  `json:"source_path,omitempty"`
}

// RetrievalService answers free-text queries with scored passages.
type RetrievalService interface {
	Query(ctx context.Context, text string, opts RetrievalOptions) ([]RetrievalResult, error)
}

// GraphNode is a structural element (type, function, file) in the graph service.
type GraphNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}

// GraphEdge is a directed relation between two nodes.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// GraphResult is the structural context returned for a query.
type GraphResult struct {
	Summary string      `json:"summary"`
	Nodes   []GraphNode `json:"nodes,omitempty"`
	Edges   []GraphEdge `json:"edges,omitempty"`
}

// GraphService returns structural context for a query, optionally scoped to a workspace.
type GraphService interface {
	Enrich(ctx context.Context, text, workspace string) (*GraphResult, error)
}

// Enricher decorates an execution context with retrieved knowledge.
// Implementations never fail: a failed source is omitted.
type Enricher interface {
	Enrich(ctx context.Context, ec ExecutionContext, useRetrieval, useGraph bool, opts *RetrievalOptions) ExecutionContext
}
