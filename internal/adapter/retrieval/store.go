// Package retrieval is a local chunk index over SQLite FTS5. It implements
// domain.RetrievalService for the enrichment pipeline.
package retrieval

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"aura-agents/internal/domain"
	"aura-agents/internal/usecase"
)

// Options tune how documents are chunked on Index. Zero values use the
// chunker defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// Store is a SQLite-backed chunk index. Each source path owns a set of
// chunks that is replaced atomically on every Index call.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	size    int
	overlap int
}

var _ domain.RetrievalService = (*Store)(nil)

// New opens (or creates) the index at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrVectorStore, err)
	}

	// SQLite write safety: single writer.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrVectorStore, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrVectorStore, err)
	}

	size, overlap := opts.ChunkSize, opts.ChunkOverlap
	if size <= 0 {
		size = usecase.DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = usecase.DefaultChunkOverlap
	}
	return &Store{db: db, logger: logger, size: size, overlap: overlap}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Index replaces the chunks of source with a fresh split of text. It reports
// whether anything changed; text identical to the last indexed version is a
// no-op.
func (s *Store) Index(ctx context.Context, source, text string) (int, bool, error) {
	sum := sha256.Sum256([]byte(text))
	hash := hex.EncodeToString(sum[:])

	var prev string
	var prevChunks int
	err := s.db.QueryRowContext(ctx, "SELECT hash, chunks FROM sources WHERE path = ?", source).Scan(&prev, &prevChunks)
	switch {
	case err == nil && prev == hash:
		return prevChunks, false, nil
	case err != nil && err != sql.ErrNoRows:
		return 0, false, fmt.Errorf("%w: lookup source: %v", domain.ErrVectorStore, err)
	}

	chunks := usecase.Split(text, s.size, s.overlap)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return 0, false, fmt.Errorf("%w: delete chunks: %v", domain.ErrVectorStore, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (source, idx, start_line, end_line, content) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return 0, false, fmt.Errorf("%w: prepare: %v", domain.ErrVectorStore, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, source, c.Index, c.StartLine, c.EndLine, c.Text); err != nil {
			return 0, false, fmt.Errorf("%w: insert chunk: %v", domain.ErrVectorStore, err)
		}
	}

	const upsert = `
		INSERT INTO sources (path, hash, chunks, indexed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash       = excluded.hash,
			chunks     = excluded.chunks,
			indexed_at = excluded.indexed_at
	`
	if _, err := tx.ExecContext(ctx, upsert, source, hash, len(chunks), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return 0, false, fmt.Errorf("%w: upsert source: %v", domain.ErrVectorStore, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}
	return len(chunks), true, nil
}

// DeleteSource removes every chunk of source. Deleting an unknown source is
// not an error.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrVectorStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE source = ?", source); err != nil {
		return fmt.Errorf("%w: delete chunks: %v", domain.ErrVectorStore, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE path = ?", source); err != nil {
		return fmt.Errorf("%w: delete source: %v", domain.ErrVectorStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrVectorStore, err)
	}
	return nil
}

// Sources lists indexed source paths that start with prefix, sorted.
func (s *Store) Sources(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM sources WHERE path LIKE ? ESCAPE '\' ORDER BY path`, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: list sources: %v", domain.ErrVectorStore, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("%w: scan source: %v", domain.ErrVectorStore, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Stats returns the number of indexed sources and chunks.
func (s *Store) Stats(ctx context.Context) (sources, chunks int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM sources), (SELECT COUNT(*) FROM chunks)").Scan(&sources, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: stats: %v", domain.ErrVectorStore, err)
	}
	return sources, chunks, nil
}
