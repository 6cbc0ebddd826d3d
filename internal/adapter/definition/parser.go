// Package definition loads agent definitions from markdown-style documents.
//
// A definition is a sequence of headed sections:
//
//	# Coder (C#)
//	## Metadata
//	- **Model**: gpt-4o
//	- **Priority**: 20
//	## Capabilities
//	- coding
//	## Languages
//	- csharp
//	## Tools
//	- **read_file(path)**: read a file
//	## System Prompt
//	You are a careful C# engineer. Task: {{prompt}}
//
// Section titles are matched case-insensitively. The System Prompt section
// runs until the next header at the same or a shallower level, so prompt
// bodies may contain their own subheadings.
package definition

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"aura-agents/internal/domain"
)

const (
	sectionMetadata     = "metadata"
	sectionCapabilities = "capabilities"
	sectionLanguages    = "languages"
	sectionTags         = "tags"
	sectionTools        = "tools"
	sectionSystemPrompt = "system prompt"
)

var (
	metadataLine = regexp.MustCompile(`^[-*]\s*\*\*([^*]+?)\*\*\s*:?\s*(.*)$`)
	listLine     = regexp.MustCompile(`^[-*]\s+(.+)$`)
	toolSig      = regexp.MustCompile(`\*\*([A-Za-z0-9_.\-]+)\(`)
	bareTool     = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// Parser turns definition text into a domain.AgentDefinition. It is safe
// for concurrent use.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that reports recoverable problems to logger.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

type section struct {
	level int
	lines []string
}

// Parse parses text into a definition with the given id. Missing Metadata or
// System Prompt sections fail with domain.ErrInvalidDefinition; malformed
// numeric fields fall back to their defaults with a warning.
func (p *Parser) Parse(text, id string) (domain.AgentDefinition, error) {
	id = domain.CanonicalID(id)
	if id == "" {
		return domain.AgentDefinition{}, domain.NewDomainError("Definition.Parse", domain.ErrInvalidDefinition, "empty id")
	}

	title, sections := splitSections(text)

	meta, ok := sections[sectionMetadata]
	if !ok {
		return domain.AgentDefinition{}, domain.NewDomainError("Definition.Parse", domain.ErrInvalidDefinition, id+": missing Metadata section")
	}
	promptSec, ok := sections[sectionSystemPrompt]
	if !ok {
		return domain.AgentDefinition{}, domain.NewDomainError("Definition.Parse", domain.ErrInvalidDefinition, id+": missing System Prompt section")
	}
	prompt := trimBlankLines(strings.Join(promptSec.lines, "\n"))
	if prompt == "" {
		return domain.AgentDefinition{}, domain.NewDomainError("Definition.Parse", domain.ErrInvalidDefinition, id+": empty System Prompt")
	}

	def := domain.AgentDefinition{
		ID:           id,
		Temperature:  domain.DefaultTemperature,
		Priority:     domain.DefaultPriority,
		SystemPrompt: prompt,
		Metadata:     make(map[string]string),
	}
	p.applyMetadata(&def, meta.lines)

	if def.Name == "" {
		def.Name = title
	}
	if def.Name == "" {
		def.Name = id
	}

	if sec, ok := sections[sectionCapabilities]; ok {
		for _, item := range listItems(sec.lines) {
			c := domain.CanonicalCapability(firstToken(item))
			if c == "" {
				continue
			}
			if !domain.IsKnownCapability(c) {
				p.logger.Warn("unknown capability accepted", "agent_id", id, "capability", c)
			}
			def.Capabilities = appendUnique(def.Capabilities, c)
		}
	}
	if len(def.Capabilities) == 0 {
		p.logger.Warn("definition declares no capabilities", "agent_id", id)
	}

	if sec, ok := sections[sectionLanguages]; ok {
		for _, item := range listItems(sec.lines) {
			if lang := domain.CanonicalLanguage(firstToken(item)); lang != "" {
				def.Languages = appendUnique(def.Languages, lang)
			}
		}
	}

	if sec, ok := sections[sectionTags]; ok {
		for _, item := range listItems(sec.lines) {
			def.Tags = appendUnique(def.Tags, stripMarkup(item))
		}
	}

	if sec, ok := sections[sectionTools]; ok {
		for _, item := range listItems(sec.lines) {
			if name := toolName(item); name != "" {
				def.Tools = appendUnique(def.Tools, name)
			}
		}
	}

	if len(def.Metadata) == 0 {
		def.Metadata = nil
	}
	return def, nil
}

// splitSections indexes the document by lowercased section title. It also
// returns the first level-1 title, used as a display-name fallback.
func splitSections(text string) (string, map[string]*section) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	sections := make(map[string]*section)

	var (
		title   string
		current *section
		inFence bool
	)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		level, name, isHeader := parseHeader(trimmed)
		if isHeader && !inFence {
			// Deeper headers belong to the system prompt body.
			if current != nil && current == sections[sectionSystemPrompt] && level > current.level {
				current.lines = append(current.lines, line)
				continue
			}
			key := strings.ToLower(strings.TrimSuffix(name, ":"))
			if level == 1 && title == "" && !isKnownSection(key) {
				title = name
			}
			if _, seen := sections[key]; seen || !isKnownSection(key) {
				current = nil
				continue
			}
			current = &section{level: level}
			sections[key] = current
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	return title, sections
}

func parseHeader(line string) (level int, name string, ok bool) {
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level == len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level:]), true
}

func isKnownSection(key string) bool {
	switch key {
	case sectionMetadata, sectionCapabilities, sectionLanguages, sectionTags, sectionTools, sectionSystemPrompt:
		return true
	}
	return false
}

func (p *Parser) applyMetadata(def *domain.AgentDefinition, lines []string) {
	for _, line := range lines {
		m := metadataLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		rawKey := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), ":"))
		value := strings.TrimSpace(m[2])

		switch normalizeKey(rawKey) {
		case "name":
			def.Name = value
		case "description":
			def.Description = value
		case "provider":
			def.Provider = value
		case "model":
			def.Model = value
		case "temperature":
			t, err := strconv.ParseFloat(value, 64)
			if err != nil || t < 0 || t > 2 {
				p.logger.Warn("invalid temperature, using default", "agent_id", def.ID, "value", value, "default", domain.DefaultTemperature)
				t = domain.DefaultTemperature
			}
			def.Temperature = t
		case "priority":
			n, err := strconv.Atoi(value)
			if err != nil {
				p.logger.Warn("invalid priority, using default", "agent_id", def.ID, "value", value, "default", domain.DefaultPriority)
				n = domain.DefaultPriority
			}
			def.Priority = n
		case "maxiterations":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				p.logger.Warn("invalid max iterations, using engine default", "agent_id", def.ID, "value", value)
				n = 0
			}
			def.MaxIterations = n
		case "retrieval", "rag":
			def.UseRetrieval = p.parseBool(def.ID, rawKey, value)
		case "graph":
			def.UseGraph = p.parseBool(def.ID, rawKey, value)
		case "topk":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				def.Retrieval.TopK = n
			} else {
				p.logger.Warn("invalid top k ignored", "agent_id", def.ID, "value", value)
			}
		case "minscore":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
				def.Retrieval.MinScore = f
			} else {
				p.logger.Warn("invalid min score ignored", "agent_id", def.ID, "value", value)
			}
		case "sourcescope":
			def.Retrieval.SourceScope = value
		default:
			def.Metadata[rawKey] = value
		}
	}
}

func (p *Parser) parseBool(id, key, value string) bool {
	switch strings.ToLower(value) {
	case "true", "yes", "on", "1", "enabled":
		return true
	case "false", "no", "off", "0", "disabled", "":
		return false
	}
	p.logger.Warn("invalid boolean, using false", "agent_id", id, "key", key, "value", value)
	return false
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
}

func listItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		m := listLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		if item := strings.TrimSpace(m[1]); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// toolName extracts the tool id from "**name(args)**: ..." or a bare "name".
func toolName(item string) string {
	if m := toolSig.FindStringSubmatch(item); m != nil {
		return m[1]
	}
	name := stripMarkup(firstToken(item))
	name = strings.TrimSuffix(name, "()")
	if bareTool.MatchString(name) {
		return name
	}
	return ""
}

func firstToken(item string) string {
	fields := strings.Fields(stripMarkup(item))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ",;")
}

func stripMarkup(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// errTooLarge is returned for files above maxDefinitionSize.
func errTooLarge(path string, size int64) error {
	return domain.NewDomainError("Definition.Load", domain.ErrInvalidDefinition,
		fmt.Sprintf("%s too large (%d bytes, max %d)", path, size, maxDefinitionSize))
}
