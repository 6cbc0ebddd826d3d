package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
)

// DefaultTopK bounds a query that does not set TopK.
const DefaultTopK = 5

// maxQueryTerms caps the OR-expansion of long prompts.
const maxQueryTerms = 32

var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Query implements domain.RetrievalService. Results are ordered by
// descending score; score is the BM25 rank normalised into (0,1).
func (s *Store) Query(ctx context.Context, text string, opts domain.RetrievalOptions) ([]domain.RetrievalResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := tracer.StartSpan(ctx, "retrieval.query",
		trace.WithAttributes(
			tracer.IntAttr("retrieval.top_k", topK),
			tracer.Float64Attr("retrieval.min_score", opts.MinScore),
			tracer.StringAttr("retrieval.scope", opts.SourceScope),
		),
	)
	defer span.End()

	match := ftsQuery(text)
	if match == "" {
		tracer.SetOK(span)
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.source, c.content, bm25(chunks_fts) AS rank
		 FROM chunks_fts
		 JOIN chunks c ON c.id = chunks_fts.rowid
		 WHERE chunks_fts MATCH ? AND c.source LIKE ? ESCAPE '\'
		 ORDER BY rank, c.source, c.idx
		 LIMIT ?`,
		match, likePrefix(opts.SourceScope), topK,
	)
	if err != nil {
		err = domain.Classify("Retrieval.Query", fmt.Errorf("%w: %v", domain.ErrVectorStore, err))
		tracer.RecordError(span, err)
		return nil, err
	}
	defer rows.Close()

	var results []domain.RetrievalResult
	for rows.Next() {
		var (
			r    domain.RetrievalResult
			rank float64
		)
		if err := rows.Scan(&r.SourcePath, &r.Text, &rank); err != nil {
			tracer.RecordError(span, err)
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrVectorStore, err)
		}
		r.Score = normalizeRank(rank)
		if r.Score < opts.MinScore {
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		err = domain.Classify("Retrieval.Query", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(tracer.IntAttr("retrieval.results", len(results)))
	tracer.SetOK(span)
	s.logger.Debug("retrieval query", "terms", strings.Count(match, " OR ")+1, "results", len(results))
	return results, nil
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms, so user
// punctuation can never be parsed as FTS5 syntax.
func ftsQuery(text string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, `"`+t+`"`)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

// normalizeRank maps an FTS5 bm25 value (lower is better, usually negative)
// to x/(1+x) with x = -rank.
func normalizeRank(rank float64) float64 {
	x := -rank
	if x <= 0 {
		return 0
	}
	return x / (1 + x)
}

// likePrefix builds a LIKE pattern matching strings that start with prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
