package enrich

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"aura-agents/internal/domain"
)

// rankResults drops results below minScore, orders the rest by descending
// score and keeps at most topK. Equal scores order by source path, then by
// service order.
func rankResults(results []domain.RetrievalResult, topK int, minScore float64) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SourcePath < out[j].SourcePath
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// FormatRetrieval renders ranked results as delimited blocks:
//
//	--- Result 1 | Source: docs/a.md | Relevance: 87.5% ---
//	<text>
//	--- End Result 1 ---
func FormatRetrieval(results []domain.RetrievalResult) string {
	blocks := make([]string, 0, len(results))
	for i, r := range results {
		n := i + 1
		var b strings.Builder
		fmt.Fprintf(&b, "--- Result %d", n)
		if r.SourcePath != "" {
			fmt.Fprintf(&b, " | Source: %s", r.SourcePath)
		}
		fmt.Fprintf(&b, " | Relevance: %s%% ---\n", percent(r.Score))
		b.WriteString(strings.TrimSpace(r.Text))
		fmt.Fprintf(&b, "\n--- End Result %d ---", n)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// percent renders a 0..1 score as a percentage with at most two decimals.
func percent(score float64) string {
	return strconv.FormatFloat(math.Round(score*10000)/100, 'f', -1, 64)
}

// FormatGraph renders the structural summary, or a node/edge listing when
// the service returned no summary.
func FormatGraph(g *domain.GraphResult) string {
	if g == nil {
		return ""
	}
	if s := strings.TrimSpace(g.Summary); s != "" {
		return s
	}

	var b strings.Builder
	if len(g.Nodes) > 0 {
		b.WriteString("Nodes:\n")
		for _, n := range g.Nodes {
			fmt.Fprintf(&b, "- %s %s", n.Kind, n.Name)
			if n.Path != "" {
				fmt.Fprintf(&b, " (%s)", n.Path)
			}
			b.WriteByte('\n')
		}
	}
	if len(g.Edges) > 0 {
		b.WriteString("Edges:\n")
		for _, e := range g.Edges {
			fmt.Fprintf(&b, "- %s -%s-> %s\n", e.From, e.Kind, e.To)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
