package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-agents/internal/domain"
)

// numberedLines returns n lines of 9 characters each.
func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line-%04d", i+1)
	}
	return strings.Join(lines, "\n")
}

func ranges(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = fmt.Sprintf("%d-%d", c.StartLine, c.EndLine)
	}
	return out
}

func TestSplit_OverlapCarriesTrailingLines(t *testing.T) {
	chunks := Split(numberedLines(10), 30, 10)
	assert.Equal(t, []string{"1-3", "3-5", "5-7", "7-9", "9-10"}, ranges(chunks))
	assert.Equal(t, "line-0003\nline-0004\nline-0005", chunks[1].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplit_PureOverlapTailSkipped(t *testing.T) {
	chunks := Split(numberedLines(9), 30, 10)
	assert.Equal(t, []string{"1-3", "3-5", "5-7", "7-9"}, ranges(chunks))
}

func TestSplit_TrailingNewlineAddsNoChunk(t *testing.T) {
	for _, n := range []int{9, 10} {
		plain := Split(numberedLines(n), 30, 10)
		withNewline := Split(numberedLines(n)+"\n", 30, 10)
		withCRLF := Split(strings.ReplaceAll(numberedLines(n), "\n", "\r\n")+"\r\n", 30, 10)
		assert.Equal(t, plain, withNewline, "n=%d", n)
		assert.Equal(t, plain, withCRLF, "n=%d", n)
	}

	chunks := Split("aaaa\nbbbb\ncccc\n", 10, 4)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.NotEqual(t, "", strings.TrimSpace(last.Text))
	assert.False(t, strings.HasSuffix(last.Text, "\n"), "last chunk %q ends in a blank line", last.Text)
}

func TestSplit_BlankTailAfterOverlapSkipped(t *testing.T) {
	chunks := Split(numberedLines(9)+"\n\n   \n", 30, 10)
	assert.Equal(t, []string{"1-3", "3-5", "5-7", "7-9"}, ranges(chunks))
}

func TestSplit_NoOverlap(t *testing.T) {
	chunks := Split(numberedLines(6), 30, 0)
	assert.Equal(t, []string{"1-3", "4-6"}, ranges(chunks))
}

func TestSplit_SmallInputSingleChunk(t *testing.T) {
	chunks := Split("one\ntwo", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "one\ntwo", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
}

func TestSplit_EmptyInput(t *testing.T) {
	assert.Nil(t, Split("", 100, 10))
	assert.Nil(t, Split(" \n\t", 100, 10))
}

func TestSplit_InvalidOverlapClamped(t *testing.T) {
	// overlap >= size falls back to size/5 = 6, which carries nothing here.
	chunks := Split(numberedLines(6), 30, 30)
	assert.Equal(t, []string{"1-3", "4-6"}, ranges(chunks))
}

func TestChunkerAgent_Execute(t *testing.T) {
	agent := NewChunkerAgent(30, 10)
	assert.Equal(t, ChunkerID, agent.ID())
	assert.True(t, agent.Definition().HasCapability(domain.CapChunking))

	out, err := agent.Execute(context.Background(), domain.ExecutionContext{
		Prompt:     "ignored",
		Properties: map[string]any{"text": numberedLines(5), "path": "notes.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, "chunk-0001 notes.txt:1-3\nchunk-0002 notes.txt:3-5", out.Content)
	assert.Equal(t, "line-0001\nline-0002\nline-0003", out.Artifacts["chunk-0001"])
	assert.Len(t, out.Artifacts, 2)
	assert.NotEmpty(t, out.ExecutionID)
}

func TestChunkerAgent_UsesPromptWithoutTextProperty(t *testing.T) {
	out, err := NewChunkerAgent(0, -1).Execute(context.Background(), domain.ExecutionContext{Prompt: "short"})
	require.NoError(t, err)
	assert.Equal(t, "chunk-0001 1-1", out.Content)
}

func TestChunkerAgent_EmptyInput(t *testing.T) {
	_, err := NewChunkerAgent(0, 0).Execute(context.Background(), domain.ExecutionContext{})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}

func TestFactory_Build(t *testing.T) {
	f := NewAgentFactory(EngineDeps{})

	agent, err := f.Build(coderDef())
	require.NoError(t, err)
	assert.Equal(t, "coder", agent.ID())

	_, err = f.Build(domain.AgentDefinition{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidDefinition)
	_, err = f.Build(domain.AgentDefinition{SystemPrompt: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidDefinition)
}
