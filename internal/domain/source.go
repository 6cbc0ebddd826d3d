package domain

import "context"

// ScanResult is one pass over a definition source. Every id present in the
// source appears either in Definitions or in Failed.
type ScanResult struct {
	Definitions []AgentDefinition
	Failed      map[string]error
}

// Present reports whether id was seen in the scan, parsed or not.
func (r ScanResult) Present(id string) bool {
	if _, ok := r.Failed[id]; ok {
		return true
	}
	for _, d := range r.Definitions {
		if d.ID == id {
			return true
		}
	}
	return false
}

// DefinitionSource is a watched location that agent definitions are
// discovered from.
type DefinitionSource interface {
	// Name identifies the source in logs and change events.
	Name() string
	// Dir is the directory a change feed should watch.
	Dir() string
	// Scan reads every definition in the source. An error means the source
	// itself could not be listed.
	Scan(ctx context.Context) (ScanResult, error)
	// Load parses the single definition at path.
	Load(path string) (AgentDefinition, error)
	// IDForPath maps a file path to the agent id it defines. ok is false
	// for paths the source does not own.
	IDForPath(path string) (id string, ok bool)
}
