// Package store provides tag template persistence
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Limits on stored templates.
const (
	MaxNameLength    = 50
	MaxContentLength = 2000
)

var (
	// ErrDuplicate is returned when a scope already has a template with
	// the same name
	ErrDuplicate = errors.New("duplicate")

	// ErrNotFound is returned when a template does not exist
	ErrNotFound = errors.New("template not found")

	// ErrNameTooLong is returned for names over MaxNameLength characters
	ErrNameTooLong = errors.New("name too long")

	// ErrContentTooLong is returned for content over MaxContentLength characters
	ErrContentTooLong = errors.New("content too long")

	// ErrInvalidName is returned for empty names or names with whitespace
	ErrInvalidName = errors.New("invalid name")

	// ErrEmptyContent is returned for blank content
	ErrEmptyContent = errors.New("content is empty")

	// ErrPermission is returned when the caller may not modify a template
	ErrPermission = errors.New("permission denied")

	// ErrNotPersonal is returned when transferring a guild template
	ErrNotPersonal = errors.New("only personal templates can be transferred")
)

// Scope is the class of owner a template belongs to.
type Scope string

const (
	// ScopeUser templates are personal; the scope key is the user id.
	ScopeUser Scope = "user"

	// ScopeGuild templates belong to a server; the scope key is the guild id.
	ScopeGuild Scope = "guild"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeGuild
}

// Key identifies a template: names are unique per scope and scope key.
type Key struct {
	Scope    Scope
	ScopeKey string
	Name     string
}

// String renders the key for logs.
func (k Key) String() string {
	return string(k.Scope) + ":" + k.ScopeKey + "/" + k.Name
}

// Template is a named, stored tag source.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	OwnerID   string    `json:"owner_id"`
	Scope     Scope     `json:"scope"`
	ScopeKey  string    `json:"scope_key"`
	CreatedAt time.Time `json:"created_at"`
	Uses      int64     `json:"uses"`
}

// Key returns the template's identity.
func (t *Template) Key() Key {
	return Key{Scope: t.Scope, ScopeKey: t.ScopeKey, Name: t.Name}
}

// Store is the interface for template persistence
type Store interface {
	// Resolve returns the caller's personal template named name, or the
	// guild's when there is none, in a single lookup. guildID may be empty.
	Resolve(ctx context.Context, userID, guildID, name string) (*Template, error)

	// Get returns the template at key
	Get(ctx context.Context, key Key) (*Template, error)

	// Create stores a new template, filling ID and CreatedAt when unset
	Create(ctx context.Context, t *Template) error

	// Edit replaces the content of a template. Authors may edit their own
	// templates; elevated callers may edit any guild template.
	Edit(ctx context.Context, key Key, authorID, content string, elevated bool) error

	// Delete removes a template under the same rules as Edit
	Delete(ctx context.Context, key Key, authorID string, elevated bool) error

	// Transfer hands a personal template to another user
	Transfer(ctx context.Context, key Key, currentOwner, newOwner string) error

	// IncrementUses atomically bumps the use counter
	IncrementUses(ctx context.Context, key Key) error

	// List returns the templates of a scope ordered by name
	List(ctx context.Context, scope Scope, scopeKey string) ([]*Template, error)

	// Close closes the store and releases resources
	Close() error
}

// NormalizeName lowercases and trims a template name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateName checks a normalized name.
func ValidateName(name string) error {
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return ErrInvalidName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateContent checks template content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// prepare normalizes and validates t before it is stored.
func prepare(t *Template) error {
	t.Name = NormalizeName(t.Name)
	if !t.Scope.Valid() {
		return fmt.Errorf("invalid scope %q", t.Scope)
	}
	if t.ScopeKey == "" {
		return errors.New("scope key is required")
	}
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if err := ValidateContent(t.Content); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

func normalizeKey(k Key) Key {
	k.Name = NormalizeName(k.Name)
	return k
}

// mayModify applies the edit and delete permission rule.
func mayModify(t *Template, authorID string, elevated bool) bool {
	return t.OwnerID == authorID || (elevated && t.Scope == ScopeGuild)
}

// Open returns the store for driver: sqlite, bolt or memory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteStore(path)
	case "bolt":
		return NewBoltStore(path)
	case "memory", "":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}
