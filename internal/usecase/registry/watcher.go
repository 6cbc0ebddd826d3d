package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aura-agents/internal/domain"
)

// DefaultDebounce absorbs editor save bursts before a changed file is parsed.
const DefaultDebounce = 150 * time.Millisecond

type changeKind int

const (
	changeWrite changeKind = iota
	changeRemove
	changeFull
)

type change struct {
	kind changeKind
	src  domain.DefinitionSource
	path string
}

type pending struct {
	src      domain.DefinitionSource
	deadline time.Time
}

// Watcher turns filesystem events into registry reloads. The fsnotify
// goroutine only forwards events; a single reconciler goroutine debounces
// them and is the only caller of the registry's reload path.
type Watcher struct {
	reg      *Registry
	debounce time.Duration
	logger   *slog.Logger

	fw      *fsnotify.Watcher
	changes chan change
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for every source of reg. A non-positive
// debounce uses DefaultDebounce.
func NewWatcher(reg *Registry, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reg:      reg,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan change, 256),
	}
}

// Start adds watches for every source directory and begins processing
// events until ctx is cancelled. It fails only if no directory could be
// watched.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.WrapOp("Watcher.Start", err)
	}

	watched := 0
	for _, src := range w.reg.Sources() {
		if err := fw.Add(src.Dir()); err != nil {
			w.logger.Warn("cannot watch definition dir", "dir", src.Dir(), "error", err)
			continue
		}
		watched++
		w.logger.Info("watching definition dir", "dir", src.Dir())
	}
	if watched == 0 {
		fw.Close()
		return domain.NewDomainError("Watcher.Start", domain.ErrValidationFailed, "no definition directory could be watched")
	}
	w.fw = fw

	w.wg.Add(2)
	go w.forward(ctx)
	go w.reconcile(ctx)
	return nil
}

// Wait blocks until both watcher goroutines have exited.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// forward filters raw fsnotify events down to definition files and queues
// them. It never touches the registry.
func (w *Watcher) forward(ctx context.Context) {
	defer w.wg.Done()
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.route(ctx, ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("filesystem event overflow, scheduling full reload")
				w.enqueue(ctx, change{kind: changeFull})
				continue
			}
			w.logger.Warn("filesystem watch error", "error", err)
		}
	}
}

func (w *Watcher) route(ctx context.Context, ev fsnotify.Event) {
	for _, src := range w.reg.Sources() {
		if _, ok := src.IDForPath(ev.Name); !ok {
			continue
		}
		kind := changeWrite
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			kind = changeRemove
		} else if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
			return
		}
		w.enqueue(ctx, change{kind: kind, src: src, path: ev.Name})
		return
	}
}

func (w *Watcher) enqueue(ctx context.Context, c change) {
	select {
	case w.changes <- c:
	case <-ctx.Done():
	}
}

// reconcile owns the debounce state.
func (w *Watcher) reconcile(ctx context.Context) {
	defer w.wg.Done()

	queue := make(map[string]pending)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	schedule := func() {
		var next time.Time
		for _, p := range queue {
			if next.IsZero() || p.deadline.Before(next) {
				next = p.deadline
			}
		}
		if !next.IsZero() {
			timer.Reset(time.Until(next))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-w.changes:
			switch c.kind {
			case changeFull:
				clear(queue)
				if _, err := w.reg.ReloadAll(ctx); err != nil {
					w.logger.Warn("full reload failed", "error", err)
				}
			case changeRemove:
				if fileExists(c.path) {
					// Replaced in place (temp-file-then-rename save).
					queue[c.path] = pending{src: c.src, deadline: time.Now().Add(w.debounce)}
					break
				}
				delete(queue, c.path)
				w.reg.RemoveFile(c.src, c.path)
			case changeWrite:
				queue[c.path] = pending{src: c.src, deadline: time.Now().Add(w.debounce)}
			}
			schedule()

		case <-timer.C:
			now := time.Now()
			for path, p := range queue {
				if p.deadline.After(now) {
					continue
				}
				delete(queue, path)
				if err := w.reg.ReloadFile(ctx, p.src, path); err != nil && ctx.Err() == nil {
					w.logger.Debug("debounced reload kept previous version", "path", path, "error", err)
				}
			}
			schedule()
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
