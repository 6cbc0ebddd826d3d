package usecase

import (
	"regexp"
	"strings"
	"sync"
	"text/template"
)

// Placeholders in definition templates may be written "{{ name }}" or
// "{{ .name }}". Bare names are rewritten to field access before parsing.
var (
	barePlaceholder = regexp.MustCompile(`\{\{(-?\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*-?)\}\}`)
	anyPlaceholder  = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)
	simpleKey       = regexp.MustCompile(`^\.?([A-Za-z_][A-Za-z0-9_.\-]*)$`)
)

var templateKeywords = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"define": true, "template": true, "block": true, "break": true,
	"continue": true, "nil": true, "true": true, "false": true,
}

// TemplateRenderer renders system-prompt templates. Rendering is total:
// unknown keys render empty, no placeholder survives in the output, and
// substituted values are never expanded again.
type TemplateRenderer struct {
	cache sync.Map // template text -> *template.Template (nil if unparseable)
	refs  sync.Map // key -> *regexp.Regexp matching a placeholder that names it
}

// NewTemplateRenderer creates a renderer with an empty parse cache.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{}
}

// Render executes tmpl against vars. Templates that fail to parse or execute
// fall back to plain one-pass substitution.
func (r *TemplateRenderer) Render(tmpl string, vars map[string]string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	if t := r.compile(tmpl); t != nil {
		var b strings.Builder
		if err := t.Execute(&b, vars); err == nil {
			return b.String()
		}
	}
	return substitute(tmpl, vars)
}

// References reports whether tmpl mentions key in any placeholder.
func (r *TemplateRenderer) References(tmpl, key string) bool {
	if !strings.Contains(tmpl, key) {
		return false
	}
	return r.referencePattern(key).MatchString(tmpl)
}

func (r *TemplateRenderer) referencePattern(key string) *regexp.Regexp {
	if v, ok := r.refs.Load(key); ok {
		return v.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`\{\{[^{}]*\b` + regexp.QuoteMeta(key) + `\b[^{}]*\}\}`)
	v, _ := r.refs.LoadOrStore(key, re)
	return v.(*regexp.Regexp)
}

func (r *TemplateRenderer) compile(tmpl string) *template.Template {
	if v, ok := r.cache.Load(tmpl); ok {
		return v.(*template.Template)
	}
	src := barePlaceholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		parts := barePlaceholder.FindStringSubmatch(m)
		if templateKeywords[parts[2]] {
			return m
		}
		return "{{" + parts[1] + "." + parts[2] + parts[3] + "}}"
	})
	t, err := template.New("prompt").Option("missingkey=zero").Parse(src)
	if err != nil {
		t = nil
	}
	r.cache.Store(tmpl, t)
	return t
}

// substitute replaces every placeholder in a single pass: simple keys get
// their value, anything else is dropped.
func substitute(tmpl string, vars map[string]string) string {
	return anyPlaceholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		inner := strings.TrimSpace(strings.Trim(anyPlaceholder.FindStringSubmatch(m)[1], "-"))
		if km := simpleKey.FindStringSubmatch(strings.TrimSpace(inner)); km != nil {
			return vars[km[1]]
		}
		return ""
	})
}
