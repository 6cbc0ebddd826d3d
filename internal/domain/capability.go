package domain

import "strings"

// Base capability vocabulary. Parameterized "prefix:value" capabilities and
// their "prefix:*" wildcard form are accepted in addition to these.
const (
	CapCoding        = "coding"
	CapTesting       = "testing"
	CapReview        = "review"
	CapDocumentation = "documentation"
	CapPlanning      = "planning"
	CapResearch      = "research"
	CapRefactoring   = "refactoring"
	CapDebugging     = "debugging"
	CapChunking      = "chunking"
)

// WildcardSuffix marks a capability that matches any value of its prefix.
const WildcardSuffix = ":*"

// baseVocabulary is ordered so BaseCapability is deterministic when a string
// could reduce to more than one base.
var baseVocabulary = []string{
	CapCoding,
	CapTesting,
	CapReview,
	CapDocumentation,
	CapPlanning,
	CapResearch,
	CapRefactoring,
	CapDebugging,
	CapChunking,
}

var knownCapabilities = func() map[string]bool {
	m := make(map[string]bool, len(baseVocabulary))
	for _, c := range baseVocabulary {
		m[c] = true
	}
	return m
}()

// capabilityAliases maps deprecated or specialised capability strings to their
// canonical form. It is consulted before any registry lookup and when a
// definition is loaded.
var capabilityAliases = map[string]string{
	"code":            CapCoding,
	"codegen":         CapCoding,
	"code-generation": CapCoding,
	"csharp-coding":   CapCoding,
	"implementation":  CapCoding,
	"test":            CapTesting,
	"tests":           CapTesting,
	"unit-testing":    CapTesting,
	"test-generation": CapTesting,
	"csharp-testing":  CapTesting,
	"code-review":     CapReview,
	"reviewing":       CapReview,
	"docs":            CapDocumentation,
	"documenting":     CapDocumentation,
	"plan":            CapPlanning,
	"architecture":    CapPlanning,
	"analysis":        CapResearch,
	"investigation":   CapResearch,
	"refactor":        CapRefactoring,
	"debug":           CapDebugging,
	"troubleshooting": CapDebugging,
	"chunk":           CapChunking,
	"text-chunking":   CapChunking,
}

// languageAliases maps common spellings to canonical language ids.
var languageAliases = map[string]string{
	"c#":      "csharp",
	"cs":      "csharp",
	"c-sharp": "csharp",
	"golang":  "go",
	"js":      "javascript",
	"node":    "javascript",
	"ts":      "typescript",
	"py":      "python",
	"python3": "python",
	"rs":      "rust",
	"c++":     "cpp",
	"kt":      "kotlin",
}

// CanonicalCapability lowercases c and applies the alias table.
func CanonicalCapability(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if canon, ok := capabilityAliases[c]; ok {
		return canon
	}
	return c
}

// CanonicalLanguage lowercases lang and applies the language alias table.
func CanonicalLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if canon, ok := languageAliases[lang]; ok {
		return canon
	}
	return lang
}

// CanonicalID normalizes an agent id. Ids are case-insensitive.
func CanonicalID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SplitParameterized splits "prefix:value" into its parts. ok is false when c
// has no prefix or no value.
func SplitParameterized(c string) (prefix, value string, ok bool) {
	prefix, value, found := strings.Cut(c, ":")
	if !found || prefix == "" || value == "" {
		return "", "", false
	}
	return prefix, value, true
}

// IsKnownCapability reports whether c (canonical) belongs to the closed
// vocabulary, is parameterized, or reduces to a known base capability.
func IsKnownCapability(c string) bool {
	if knownCapabilities[c] {
		return true
	}
	if _, _, ok := SplitParameterized(c); ok {
		return true
	}
	_, ok := BaseCapability(c)
	return ok
}

// BaseCapability reduces specialised forms like "csharp-coding" or
// "coding-assistant" to a known base capability. ok is false when c is already
// a base capability or no base can be derived.
func BaseCapability(c string) (string, bool) {
	if knownCapabilities[c] {
		return "", false
	}
	for _, base := range baseVocabulary {
		if strings.HasSuffix(c, "-"+base) || strings.HasPrefix(c, base+"-") {
			return base, true
		}
	}
	return "", false
}
