package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalCapability(t *testing.T) {
	tests := map[string]string{
		"coding":        "coding",
		" Coding ":      "coding",
		"csharp-coding": "coding",
		"code-review":   "review",
		"docs":          "documentation",
		"ingest:pdf":    "ingest:pdf",
		"unknown-thing": "unknown-thing",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalCapability(in), "input %q", in)
	}
}

func TestCanonicalLanguage(t *testing.T) {
	assert.Equal(t, "csharp", CanonicalLanguage("C#"))
	assert.Equal(t, "go", CanonicalLanguage("golang"))
	assert.Equal(t, "python", CanonicalLanguage("py"))
	assert.Equal(t, "haskell", CanonicalLanguage("Haskell"))
}

func TestSplitParameterized(t *testing.T) {
	p, v, ok := SplitParameterized("ingest:pdf")
	assert.True(t, ok)
	assert.Equal(t, "ingest", p)
	assert.Equal(t, "pdf", v)

	for _, bad := range []string{"coding", ":pdf", "ingest:"} {
		_, _, ok := SplitParameterized(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestBaseCapability(t *testing.T) {
	base, ok := BaseCapability("coding-base")
	assert.True(t, ok)
	assert.Equal(t, CapCoding, base)

	base, ok = BaseCapability("testing-assistant")
	assert.True(t, ok)
	assert.Equal(t, CapTesting, base)

	_, ok = BaseCapability("coding")
	assert.False(t, ok, "a base capability has no further base")

	_, ok = BaseCapability("gardening")
	assert.False(t, ok)
}

func TestIsKnownCapability(t *testing.T) {
	assert.True(t, IsKnownCapability("review"))
	assert.True(t, IsKnownCapability("ingest:*"))
	assert.True(t, IsKnownCapability("rust-coding"))
	assert.False(t, IsKnownCapability("gardening"))
}

func TestAgentDefinitionSupportsLanguage(t *testing.T) {
	polyglot := AgentDefinition{ID: "coder-any"}
	assert.True(t, polyglot.SupportsLanguage("csharp"))

	cs := AgentDefinition{ID: "coder-cs", Languages: []string{"csharp"}}
	assert.True(t, cs.SupportsLanguage("csharp"))
	assert.True(t, cs.SupportsLanguage(""))
	assert.False(t, cs.SupportsLanguage("go"))
}

func TestAgentDefinitionClone(t *testing.T) {
	orig := AgentDefinition{
		ID:           "a",
		Capabilities: []string{"coding"},
		Metadata:     map[string]string{"team": "core"},
	}
	c := orig.Clone()
	c.Capabilities[0] = "review"
	c.Metadata["team"] = "other"

	assert.Equal(t, "coding", orig.Capabilities[0])
	assert.Equal(t, "core", orig.Metadata["team"])
	assert.True(t, orig.HasCapability("coding"))
}
