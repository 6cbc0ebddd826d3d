package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura-agents/internal/domain"
)

func TestContextBuilder_Vars(t *testing.T) {
	cb := NewContextBuilder(nil)
	def := domain.AgentDefinition{ID: "coder", Name: "Coder"}
	ec := domain.ExecutionContext{
		Prompt:    "do it",
		Workspace: "/ws",
		Properties: map[string]any{
			"language": "go",
			"attempt":  2,
			"prompt":   "shadowed",
			"nothing":  nil,
		},
	}

	vars := cb.Vars(def, ec)
	assert.Equal(t, "do it", vars[VarPrompt])
	assert.Equal(t, "/ws", vars[VarWorkspace])
	assert.Equal(t, "coder", vars[VarAgentID])
	assert.Equal(t, "Coder", vars[VarAgentName])
	assert.Equal(t, "go", vars["language"])
	assert.Equal(t, "2", vars["attempt"])
	assert.NotContains(t, vars, "nothing")
}

func TestContextBuilder_AppendsUnplacedContext(t *testing.T) {
	cb := NewContextBuilder(nil)
	def := domain.AgentDefinition{SystemPrompt: "You review code.\n"}
	ec := domain.ExecutionContext{RetrievalText: "R", GraphText: "G"}

	got := cb.SystemPrompt(def, ec)
	want := "You review code.\n\n## Relevant Context\n\n### Retrieved Knowledge\n\nR\n\n### Code Structure\n\nG"
	assert.Equal(t, want, got)
}

func TestContextBuilder_TemplatePlacesContext(t *testing.T) {
	cb := NewContextBuilder(nil)
	def := domain.AgentDefinition{SystemPrompt: "Docs:\n{{rag_context}}"}
	ec := domain.ExecutionContext{RetrievalText: "R", GraphText: "G"}

	got := cb.SystemPrompt(def, ec)
	assert.Equal(t, "Docs:\nR\n\n## Relevant Context\n\n### Code Structure\n\nG", got)
}

func TestContextBuilder_NoContextNoSection(t *testing.T) {
	cb := NewContextBuilder(nil)
	def := domain.AgentDefinition{SystemPrompt: "Plain {{rag_context}}"}

	assert.Equal(t, "Plain ", cb.SystemPrompt(def, domain.ExecutionContext{}))
}

func TestContextBuilder_Build(t *testing.T) {
	cb := NewContextBuilder(nil)
	def := domain.AgentDefinition{SystemPrompt: "sys"}
	ec := domain.ExecutionContext{
		Prompt:  "now",
		History: []domain.Message{{Role: domain.RoleUser, Content: "before"}},
	}

	msgs := cb.Build(def, ec)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "before", msgs[1].Content)
	assert.Equal(t, domain.RoleUser, msgs[2].Role)
	assert.Equal(t, "now", msgs[2].Content)
}
