package retrieval

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"aura-agents/internal/domain"
)

// maxIndexFileSize skips files that are unlikely to be prose or source.
const maxIndexFileSize = 1 << 20

// IndexReport summarises one IndexDir pass.
type IndexReport struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Skipped   int `json:"skipped"`
	Chunks    int `json:"chunks"`
}

// IndexDir walks dir and indexes every regular text file whose extension is
// in exts (all files when exts is empty). Hidden files and directories are
// skipped. Sources previously indexed under dir that no longer exist are
// deleted. Source paths are stored absolute.
func (s *Store) IndexDir(ctx context.Context, dir string, exts []string) (IndexReport, error) {
	var report IndexReport

	root, err := filepath.Abs(dir)
	if err != nil {
		return report, domain.WrapOp("Retrieval.IndexDir", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return report, domain.WrapOp("Retrieval.IndexDir", err)
	}
	if !info.IsDir() {
		return report, domain.NewDomainError("Retrieval.IndexDir", domain.ErrValidationFailed, root+" is not a directory")
	}

	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[strings.ToLower(e)] = true
	}

	seen := make(map[string]bool)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("retrieval index: walk error", "path", path, "error", err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		seen[path] = true
		text, ok := s.readText(path)
		if !ok {
			report.Skipped++
			return nil
		}
		n, changed, err := s.Index(ctx, path, text)
		if err != nil {
			return err
		}
		report.Chunks += n
		if changed {
			report.Indexed++
		} else {
			report.Unchanged++
		}
		return nil
	})
	if walkErr != nil {
		return report, domain.Classify("Retrieval.IndexDir", walkErr)
	}

	prefix := root + string(filepath.Separator)
	existing, err := s.Sources(ctx, prefix)
	if err != nil {
		return report, err
	}
	for _, src := range existing {
		if seen[src] {
			continue
		}
		if err := s.DeleteSource(ctx, src); err != nil {
			return report, err
		}
		report.Removed++
	}

	s.logger.Info("retrieval index updated",
		"dir", root,
		"indexed", report.Indexed,
		"unchanged", report.Unchanged,
		"removed", report.Removed,
		"skipped", report.Skipped,
		"chunks", report.Chunks,
	)
	return report, nil
}

// IndexDirs runs IndexDir for each directory, continuing past failures.
func (s *Store) IndexDirs(ctx context.Context, dirs []string, exts []string) (IndexReport, error) {
	var (
		total IndexReport
		errs  []error
	)
	for _, dir := range dirs {
		r, err := s.IndexDir(ctx, dir, exts)
		total.Indexed += r.Indexed
		total.Unchanged += r.Unchanged
		total.Removed += r.Removed
		total.Skipped += r.Skipped
		total.Chunks += r.Chunks
		if err != nil {
			if ctx.Err() != nil {
				return total, domain.Classify("Retrieval.IndexDirs", err)
			}
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *Store) readText(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxIndexFileSize {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("retrieval index: read failed", "path", path, "error", err)
		return "", false
	}
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
