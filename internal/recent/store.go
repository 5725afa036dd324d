// Package recent persists recently opened workspaces and the directories
// that were expanded when each workspace was last closed.
package recent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxEntries is used when Open is given a non-positive limit.
const DefaultMaxEntries = 10

// DatabaseName is the file name of the store inside the app data directory.
const DatabaseName = "recent.db"

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	root        TEXT PRIMARY KEY,
	last_opened INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS expanded_dirs (
	root TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (root, path)
);
CREATE INDEX IF NOT EXISTS idx_workspaces_last_opened ON workspaces(last_opened DESC);
`

// Workspace is one row of the recent list.
type Workspace struct {
	Root       string    `json:"root"`
	Name       string    `json:"name"`
	LastOpened time.Time `json:"lastOpened"`
}

// Store is safe for concurrent use; database/sql serializes access through
// a single connection.
type Store struct {
	db         *sql.DB
	maxEntries int
	now        func() time.Time
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, maxEntries int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("recent: database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("recent: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recent: open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recent: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recent: initialize schema: %w", err)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{db: db, maxEntries: maxEntries, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Touch records root as opened now and trims the list to the configured
// maximum. Trimmed workspaces lose their saved expansion too.
func (s *Store) Touch(ctx context.Context, root string) error {
	root = normalizeRoot(root)
	if root == "" {
		return errors.New("recent: workspace root is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recent: begin touch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workspaces (root, last_opened) VALUES (?, ?)
		ON CONFLICT(root) DO UPDATE SET last_opened = excluded.last_opened`,
		root, s.now().UnixNano(),
	); err != nil {
		return fmt.Errorf("recent: record %s: %w", root, err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM expanded_dirs WHERE root IN (
			SELECT root FROM workspaces ORDER BY last_opened DESC LIMIT -1 OFFSET ?
		)`, s.maxEntries,
	); err != nil {
		return fmt.Errorf("recent: trim expansion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM workspaces WHERE root IN (
			SELECT root FROM workspaces ORDER BY last_opened DESC LIMIT -1 OFFSET ?
		)`, s.maxEntries,
	); err != nil {
		return fmt.Errorf("recent: trim workspaces: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recent: commit touch: %w", err)
	}
	return nil
}

// List returns the recent workspaces, most recently opened first.
func (s *Store) List(ctx context.Context) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT root, last_opened FROM workspaces
		ORDER BY last_opened DESC, root ASC LIMIT ?`, s.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("recent: list workspaces: %w", err)
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var (
			root string
			ns   int64
		)
		if err := rows.Scan(&root, &ns); err != nil {
			return nil, fmt.Errorf("recent: scan workspace: %w", err)
		}
		out = append(out, Workspace{
			Root:       root,
			Name:       filepath.Base(root),
			LastOpened: time.Unix(0, ns),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent: list workspaces: %w", err)
	}
	return out, nil
}

// SaveExpansion replaces the stored expansion set of root. The root itself
// is not stored since it is always expanded on open.
func (s *Store) SaveExpansion(ctx context.Context, root string, paths []string) error {
	root = normalizeRoot(root)
	if root == "" {
		return errors.New("recent: workspace root is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recent: begin save expansion: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM expanded_dirs WHERE root = ?`, root); err != nil {
		return fmt.Errorf("recent: clear expansion: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO expanded_dirs (root, path) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("recent: prepare expansion insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range paths {
		p = filepath.Clean(p)
		if p == root {
			continue
		}
		if _, err := stmt.ExecContext(ctx, root, p); err != nil {
			return fmt.Errorf("recent: save expansion %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recent: commit expansion: %w", err)
	}
	slog.Debug("[DEBUG-RECENT] expansion saved", "root", root, "count", len(paths))
	return nil
}

// Expansion returns the stored expansion set of root in path order, which
// puts every parent before its children.
func (s *Store) Expansion(ctx context.Context, root string) ([]string, error) {
	root = normalizeRoot(root)
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM expanded_dirs WHERE root = ? ORDER BY path`, root)
	if err != nil {
		return nil, fmt.Errorf("recent: load expansion: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("recent: scan expansion: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent: load expansion: %w", err)
	}
	return out, nil
}

// Remove forgets root and its expansion set.
func (s *Store) Remove(ctx context.Context, root string) error {
	root = normalizeRoot(root)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recent: begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM expanded_dirs WHERE root = ?`, root); err != nil {
		return fmt.Errorf("recent: remove expansion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE root = ?`, root); err != nil {
		return fmt.Errorf("recent: remove workspace: %w", err)
	}
	return tx.Commit()
}

func normalizeRoot(root string) string {
	if strings.TrimSpace(root) == "" {
		return ""
	}
	return filepath.Clean(root)
}
