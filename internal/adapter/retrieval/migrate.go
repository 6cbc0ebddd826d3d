package retrieval

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sources (
			path       TEXT PRIMARY KEY,
			hash       TEXT NOT NULL,
			chunks     INTEGER NOT NULL,
			indexed_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chunks (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			source     TEXT NOT NULL,
			idx        INTEGER NOT NULL,
			start_line INTEGER NOT NULL,
			end_line   INTEGER NOT NULL,
			content    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS chunks_source ON chunks(source);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content, content=chunks, content_rowid=id
		);

		CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, content) VALUES (new.id, new.content);
		END;

		CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES ('delete', old.id, old.content);
		END;
	`
	_, err := db.Exec(schema)
	return err
}
