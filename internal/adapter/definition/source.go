package definition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"aura-agents/internal/domain"
)

// maxDefinitionSize is the maximum allowed definition file size (1 MiB).
const maxDefinitionSize = 1 << 20

// DefaultExtension is the file extension definitions are discovered by.
const DefaultExtension = ".md"

// DirSource discovers definitions in a single directory. Each file with the
// configured extension defines one agent whose id is the lowercased file stem.
type DirSource struct {
	dir    string
	ext    string
	parser *Parser
}

var _ domain.DefinitionSource = (*DirSource)(nil)

// NewDirSource creates a source over dir. An empty ext means DefaultExtension.
func NewDirSource(dir, ext string, parser *Parser) *DirSource {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &DirSource{dir: filepath.Clean(dir), ext: strings.ToLower(ext), parser: parser}
}

// Name implements domain.DefinitionSource.
func (s *DirSource) Name() string { return "dir:" + s.dir }

// Dir implements domain.DefinitionSource.
func (s *DirSource) Dir() string { return s.dir }

// Scan reads every definition file in the directory. Files that fail to read
// or parse are reported in ScanResult.Failed instead of aborting the scan.
func (s *DirSource) Scan(ctx context.Context) (domain.ScanResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("read definition dir %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	res := domain.ScanResult{Failed: make(map[string]error)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return domain.ScanResult{}, err
		}
		path := filepath.Join(s.dir, name)
		id, ok := s.IDForPath(path)
		if !ok {
			continue
		}
		def, err := s.Load(path)
		if err != nil {
			res.Failed[id] = err
			continue
		}
		res.Definitions = append(res.Definitions, def)
	}
	return res, nil
}

// Load reads and parses the definition at path.
func (s *DirSource) Load(path string) (domain.AgentDefinition, error) {
	id, ok := s.IDForPath(path)
	if !ok {
		return domain.AgentDefinition{}, domain.NewDomainError("Definition.Load", domain.ErrInvalidDefinition, path+": not a definition file")
	}

	info, err := os.Stat(path)
	if err != nil {
		return domain.AgentDefinition{}, fmt.Errorf("stat definition %s: %w", path, err)
	}
	if info.Size() > maxDefinitionSize {
		return domain.AgentDefinition{}, errTooLarge(path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AgentDefinition{}, fmt.Errorf("read definition %s: %w", path, err)
	}

	def, err := s.parser.Parse(string(data), id)
	if err != nil {
		return domain.AgentDefinition{}, err
	}
	def.SourcePath = path
	return def, nil
}

// IDForPath returns the agent id for a file directly inside the directory.
func (s *DirSource) IDForPath(path string) (string, bool) {
	if filepath.Dir(filepath.Clean(path)) != s.dir {
		return "", false
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.ToLower(filepath.Ext(base)) != s.ext {
		return "", false
	}
	id := domain.CanonicalID(strings.TrimSuffix(base, filepath.Ext(base)))
	if id == "" {
		return "", false
	}
	return id, true
}
