package usecase

import (
	"context"
	"fmt"
	"strings"

	"aura-agents/internal/domain"
)

// Chunking defaults, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkerID is the id of the built-in chunking agent.
const ChunkerID = "chunker"

// Chunk is a line-aligned slice of a document. Lines are 1-based and
// inclusive.
type Chunk struct {
	Index     int
	StartLine int
	EndLine   int
	Text      string
}

// Split cuts text into line-aligned chunks of roughly size characters. Each
// chunk after the first repeats up to overlap characters of trailing lines
// from the previous one. A trailing remainder made only of repeated or blank
// lines is not emitted.
func Split(text string, size, overlap int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}

	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := strings.Split(text, "\n")
	var (
		chunks  []Chunk
		current []string
		curSize int
		start   = 1
		fresh   int // non-blank lines not yet emitted in any chunk
	)
	emit := func(end int) {
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			StartLine: start,
			EndLine:   end,
			Text:      strings.Join(current, "\n"),
		})
	}

	for i, line := range lines {
		lineNo := i + 1
		current = append(current, line)
		curSize += len(line) + 1
		if strings.TrimSpace(line) != "" {
			fresh++
		}
		if curSize < size || fresh == 0 {
			continue
		}
		emit(lineNo)

		// Carry trailing lines that fit in the overlap budget.
		keep, kept := 0, 0
		for j := len(current) - 1; j >= 0; j-- {
			if kept+len(current[j]) > overlap {
				break
			}
			kept += len(current[j]) + 1
			keep++
		}
		current = append([]string(nil), current[len(current)-keep:]...)
		curSize = kept
		start = lineNo - keep + 1
		fresh = 0
	}

	if fresh > 0 && len(current) > 0 {
		emit(len(lines))
	}
	return chunks
}

// ChunkerAgent is a native agent that splits text without calling a model.
type ChunkerAgent struct {
	def     domain.AgentDefinition
	size    int
	overlap int
}

var _ domain.Agent = (*ChunkerAgent)(nil)

// NewChunkerAgent creates the built-in chunking agent. Non-positive sizes use
// the defaults.
func NewChunkerAgent(size, overlap int) *ChunkerAgent {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &ChunkerAgent{
		def: domain.AgentDefinition{
			ID:           ChunkerID,
			Name:         "Text Chunker",
			Description:  "Splits plain text into overlapping line-aligned chunks",
			Capabilities: []string{domain.CapChunking},
			Priority:     10,
			Tags:         []string{"native"},
		},
		size:    size,
		overlap: overlap,
	}
}

// ID implements domain.Agent.
func (c *ChunkerAgent) ID() string { return c.def.ID }

// Definition implements domain.Agent.
func (c *ChunkerAgent) Definition() domain.AgentDefinition { return c.def.Clone() }

// Execute chunks Properties["text"], or the prompt when no text property is
// set. Properties["path"] labels the chunk ranges.
func (c *ChunkerAgent) Execute(ctx context.Context, ec domain.ExecutionContext) (*domain.ExecutionOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Classify("Chunker.Execute", err)
	}

	text := ec.Prompt
	if v, ok := ec.Properties["text"].(string); ok && v != "" {
		text = v
	}
	path, _ := ec.Properties["path"].(string)

	chunks := Split(text, c.size, c.overlap)
	if len(chunks) == 0 {
		return nil, domain.NewDomainError("Chunker.Execute", domain.ErrValidationFailed, "no text to chunk")
	}

	out := &domain.ExecutionOutput{
		ExecutionID: newExecutionID(),
		AgentID:     c.def.ID,
		Artifacts:   make(map[string]string, len(chunks)),
	}
	var summary strings.Builder
	for _, ch := range chunks {
		name := fmt.Sprintf("chunk-%04d", ch.Index+1)
		out.Artifacts[name] = ch.Text
		fmt.Fprintf(&summary, "%s %s%d-%d\n", name, pathPrefix(path), ch.StartLine, ch.EndLine)
	}
	out.Content = strings.TrimRight(summary.String(), "\n")
	return out, nil
}

func pathPrefix(path string) string {
	if path == "" {
		return ""
	}
	return path + ":"
}
