package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS templates (
		id          TEXT PRIMARY KEY,
		scope       TEXT NOT NULL,
		scope_key   TEXT NOT NULL,
		name        TEXT NOT NULL,
		owner_id    TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		uses        INTEGER NOT NULL DEFAULT 0,
		UNIQUE (scope, scope_key, name)
	);
	CREATE INDEX IF NOT EXISTS idx_templates_owner ON templates(owner_id);
	`)
	return err
}

const templateColumns = `id, scope, scope_key, name, owner_id, content, created_at, uses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(r rowScanner) (*Template, error) {
	var (
		t       Template
		scope   string
		created string
	)
	if err := r.Scan(&t.ID, &scope, &t.ScopeKey, &t.Name, &t.OwnerID, &t.Content, &created, &t.Uses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Scope = Scope(scope)
	ts, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = ts
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT
}

// Resolve prefers the personal template over the guild one.
func (s *SQLiteStore) Resolve(ctx context.Context, userID, guildID, name string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE name = ? AND ((scope = 'user' AND scope_key = ?) OR (scope = 'guild' AND scope_key = ?))
		ORDER BY CASE scope WHEN 'user' THEN 0 ELSE 1 END
		LIMIT 1`, NormalizeName(name), userID, guildID)
	return scanTemplate(row)
}

// Get retrieves a template by key.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Template, error) {
	key = normalizeKey(key)
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE scope = ? AND scope_key = ? AND name = ?`, string(key.Scope), key.ScopeKey, key.Name)
	return scanTemplate(row)
}

// Create inserts a template.
func (s *SQLiteStore) Create(ctx context.Context, t *Template) error {
	if err := prepare(t); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Scope), t.ScopeKey, t.Name, t.OwnerID, t.Content,
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.Uses)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// Edit updates content when the caller may modify the template.
func (s *SQLiteStore) Edit(ctx context.Context, key Key, authorID, content string, elevated bool) error {
	if err := ValidateContent(content); err != nil {
		return err
	}
	key = normalizeKey(key)
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET content = ?
		WHERE scope = ? AND scope_key = ? AND name = ?
		AND (owner_id = ? OR (? AND scope = 'guild'))`,
		content, string(key.Scope), key.ScopeKey, key.Name, authorID, elevated)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return s.checkModified(ctx, res, key)
}

// Delete removes a template when the caller may modify it.
func (s *SQLiteStore) Delete(ctx context.Context, key Key, authorID string, elevated bool) error {
	key = normalizeKey(key)
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates
		WHERE scope = ? AND scope_key = ? AND name = ?
		AND (owner_id = ? OR (? AND scope = 'guild'))`,
		string(key.Scope), key.ScopeKey, key.Name, authorID, elevated)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return s.checkModified(ctx, res, key)
}

// checkModified tells a missing template from a refused one when a
// guarded statement touched no rows.
func (s *SQLiteStore) checkModified(ctx context.Context, res sql.Result, key Key) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, key); err != nil {
		return err
	}
	return ErrPermission
}

// Transfer re-keys a personal template to newOwner.
func (s *SQLiteStore) Transfer(ctx context.Context, key Key, currentOwner, newOwner string) error {
	if key.Scope != ScopeUser {
		return ErrNotPersonal
	}
	key = normalizeKey(key)
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET owner_id = ?, scope_key = ?
		WHERE scope = 'user' AND scope_key = ? AND name = ? AND owner_id = ?`,
		newOwner, newOwner, key.ScopeKey, key.Name, currentOwner)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("transfer template: %w", err)
	}
	return s.checkModified(ctx, res, key)
}

// IncrementUses bumps the counter in a single statement.
func (s *SQLiteStore) IncrementUses(ctx context.Context, key Key) error {
	key = normalizeKey(key)
	res, err := s.db.ExecContext(ctx, `UPDATE templates SET uses = uses + 1
		WHERE scope = ? AND scope_key = ? AND name = ?`, string(key.Scope), key.ScopeKey, key.Name)
	if err != nil {
		return fmt.Errorf("increment uses: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a scope's templates ordered by name.
func (s *SQLiteStore) List(ctx context.Context, scope Scope, scopeKey string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE scope = ? AND scope_key = ? ORDER BY name`, string(scope), scopeKey)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
