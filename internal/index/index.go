// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index maintains an optional SQLite full-text index over
// converted notes, covering note text and attachment recognition text.
// Index writes never affect conversion outcomes.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Index is the notes search database.
type Index struct {
	db         *sql.DB
	maxResults int
}

// Open opens or creates the index database at path, creating the schema
// when missing.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	ix := &Index{db: db, maxResults: 20}
	if err := ix.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return ix, nil
}

// Close releases the database connection.
func (ix *Index) Close() error { return ix.db.Close() }

func (ix *Index) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			dir TEXT NOT NULL,
			body TEXT NOT NULL,
			converted_at TEXT NOT NULL,
			UNIQUE(source, title)
		)`,
	}
	for _, stmt := range statements {
		if _, err := ix.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := ix.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='notes_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE notes_fts USING fts5(title, body, content=notes, content_rowid=rowid)`,
			`CREATE TRIGGER notes_ai AFTER INSERT ON notes BEGIN
				INSERT INTO notes_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
			END`,
			`CREATE TRIGGER notes_ad AFTER DELETE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
			END`,
			`CREATE TRIGGER notes_au AFTER UPDATE ON notes BEGIN
				INSERT INTO notes_fts(notes_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
				INSERT INTO notes_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := ix.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// Add upserts one converted note. body is the searchable text: the
// note's plain text plus recognition text from its attachments.
func (ix *Index) Add(ctx context.Context, source, title, dir, body string) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT INTO notes (source, title, dir, body, converted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source, title) DO UPDATE SET
			dir = excluded.dir,
			body = excluded.body,
			converted_at = excluded.converted_at`,
		source, title, dir, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("indexing note %q: %w", title, err)
	}
	return nil
}

// Hit is one search result.
type Hit struct {
	Source string
	Title  string
	Dir    string
}

// Search runs an FTS5 query over titles and bodies, ranked by relevance.
// A zero limit uses the index default.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = ix.maxResults
	}
	rows, err := ix.db.QueryContext(ctx,
		`SELECT n.source, n.title, n.dir
		FROM notes_fts
		JOIN notes n ON n.rowid = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY notes_fts.rank
		LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Source, &h.Title, &h.Dir); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
