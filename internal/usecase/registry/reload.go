package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"

	"go.opentelemetry.io/otel/trace"

	"aura-agents/internal/domain"
	"aura-agents/internal/infra/tracer"
)

// ReloadReport summarises one ReloadAll pass.
type ReloadReport struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// ReloadAll rescans every source, registers each parsed definition and
// removes discovered agents that no longer exist. Only one reload runs at a
// time. A definition that is present but fails to parse keeps its previous
// version, and a source that cannot be listed removes nothing.
func (r *Registry) ReloadAll(ctx context.Context) (ReloadReport, error) {
	ctx, span := tracer.StartSpan(ctx, "registry.reload_all",
		trace.WithAttributes(tracer.IntAttr("registry.sources", len(r.sources))),
	)
	defer span.End()

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	var (
		report  ReloadReport
		errs    []error
		claimed = make(map[string]string) // id -> source that loaded it this pass
	)
	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return report, domain.Classify("Registry.ReloadAll", err)
		}

		scan, err := src.Scan(ctx)
		if err != nil {
			r.logger.Warn("definition source unavailable, keeping its agents", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		for id, perr := range scan.Failed {
			report.Failed++
			r.logger.Warn("definition failed to load, keeping previous version", "source", src.Name(), "agent_id", id, "error", perr)
		}

		for _, def := range scan.Definitions {
			if owner, dup := claimed[def.ID]; dup {
				r.logger.Warn("duplicate definition id skipped", "agent_id", def.ID, "source", src.Name(), "loaded_from", owner)
				continue
			}
			claimed[def.ID] = src.Name()
			r.apply(def, src.Name(), &report)
		}

		report.Removed += r.sweep(src.Name(), scan)
	}

	span.SetAttributes(
		tracer.IntAttr("registry.added", report.Added),
		tracer.IntAttr("registry.updated", report.Updated),
		tracer.IntAttr("registry.removed", report.Removed),
		tracer.IntAttr("registry.failed", report.Failed),
	)
	r.logger.Info("registry reloaded",
		"added", report.Added,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"removed", report.Removed,
		"failed", report.Failed,
		"agents", r.Len(),
	)
	domain.PublishEvent(ctx, r.bus, domain.EventReloaded, report)

	if err := errors.Join(errs...); err != nil {
		tracer.RecordError(span, err)
		return report, err
	}
	tracer.SetOK(span)
	return report, nil
}

// apply registers def unless a pinned agent owns its id or it is unchanged.
func (r *Registry) apply(def domain.AgentDefinition, source string, report *ReloadReport) {
	if cur, ok := r.load(def.ID); ok {
		if cur.pinned {
			r.logger.Warn("definition shadowed by pinned agent", "agent_id", def.ID, "source", source)
			return
		}
		if cur.source == source && reflect.DeepEqual(cur.agent.Definition(), def) {
			report.Unchanged++
			return
		}
	}

	if r.factory == nil {
		report.Failed++
		r.logger.Warn("no agent factory configured", "agent_id", def.ID)
		return
	}
	agent, err := r.factory(def)
	if err != nil {
		report.Failed++
		r.logger.Warn("agent construction failed, keeping previous version", "agent_id", def.ID, "error", err)
		return
	}
	if r.put(agent, false, source) {
		report.Updated++
	} else {
		report.Added++
	}
}

// sweep removes discovered agents of source that the scan no longer saw.
func (r *Registry) sweep(source string, scan domain.ScanResult) int {
	removed := 0
	r.agents.Range(func(k, v any) bool {
		id, e := k.(string), v.(*entry)
		if e.pinned || e.source != source || scan.Present(id) {
			return true
		}
		if r.removeDiscovered(id, e) {
			removed++
			r.logger.Info("agent removed, definition gone", "agent_id", id, "source", source)
		}
		return true
	})
	return removed
}

// ReloadFile reloads the single definition at path from src. A missing file
// unregisters its agent; a file that fails to parse keeps the previous
// version registered.
func (r *Registry) ReloadFile(ctx context.Context, src domain.DefinitionSource, path string) error {
	id, ok := src.IDForPath(path)
	if !ok {
		return nil
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Classify("Registry.ReloadFile", err)
	}

	def, err := src.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		if r.removeLocked(src.Name(), id) {
			r.promoteShadowed(ctx, id, src.Name())
		}
		return nil
	}
	if err != nil {
		r.logger.Warn("definition failed to load, keeping previous version", "agent_id", id, "path", path, "error", err)
		return err
	}

	if cur, ok := r.load(domain.CanonicalID(def.ID)); ok && !cur.pinned && r.outranks(cur.source, src.Name()) {
		r.logger.Warn("duplicate definition id skipped", "agent_id", def.ID, "source", src.Name(), "loaded_from", cur.source)
		return nil
	}

	var report ReloadReport
	r.apply(def, src.Name(), &report)
	r.logger.Info("definition reloaded", "agent_id", id, "added", report.Added == 1, "updated", report.Updated == 1)
	return nil
}

// RemoveFile unregisters the discovered agent defined by path. A definition
// with the same id in a later source takes its place.
func (r *Registry) RemoveFile(src domain.DefinitionSource, path string) bool {
	id, ok := src.IDForPath(path)
	if !ok {
		return false
	}
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	if !r.removeLocked(src.Name(), id) {
		return false
	}
	r.promoteShadowed(context.Background(), id, src.Name())
	return true
}

// sourceRank is the position of the named source, or -1 when the registry
// does not know it.
func (r *Registry) sourceRank(name string) int {
	for i, src := range r.sources {
		if src.Name() == name {
			return i
		}
	}
	return -1
}

// outranks reports whether an agent loaded from owner takes precedence over
// a definition from challenger. Earlier sources win.
func (r *Registry) outranks(owner, challenger string) bool {
	if owner == challenger {
		return false
	}
	o, c := r.sourceRank(owner), r.sourceRank(challenger)
	return o >= 0 && c >= 0 && o < c
}

// promoteShadowed registers the first definition of id found in a source
// after removedFrom. Callers hold reloadMu.
func (r *Registry) promoteShadowed(ctx context.Context, id, removedFrom string) {
	from := r.sourceRank(removedFrom)
	if from < 0 {
		return
	}
	for _, src := range r.sources[from+1:] {
		scan, err := src.Scan(ctx)
		if err != nil {
			r.logger.Warn("definition source unavailable", "source", src.Name(), "error", err)
			continue
		}
		for _, def := range scan.Definitions {
			if domain.CanonicalID(def.ID) != domain.CanonicalID(id) {
				continue
			}
			var report ReloadReport
			r.apply(def, src.Name(), &report)
			r.logger.Info("shadowed definition promoted", "agent_id", id, "source", src.Name(), "removed_from", removedFrom)
			return
		}
	}
}

func (r *Registry) removeLocked(source, id string) bool {
	e, ok := r.load(id)
	if !ok || e.pinned || e.source != source {
		return false
	}
	if r.removeDiscovered(id, e) {
		r.logger.Info("agent removed, definition deleted", "agent_id", id, "source", source)
		return true
	}
	return false
}
