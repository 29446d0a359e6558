package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var templatesBucket = []byte("templates")

// BoltStore implements Store on a bbolt file. Templates are JSON values
// keyed by scope, scope key and name.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(templatesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func scopePrefix(scope Scope, scopeKey string) []byte {
	return []byte(string(scope) + "\x00" + scopeKey + "\x00")
}

func boltKey(k Key) []byte {
	return append(scopePrefix(k.Scope, k.ScopeKey), k.Name...)
}

func getTemplate(b *bolt.Bucket, k Key) (*Template, error) {
	v := b.Get(boltKey(k))
	if v == nil {
		return nil, ErrNotFound
	}
	var t Template
	if err := json.Unmarshal(v, &t); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return &t, nil
}

func putTemplate(b *bolt.Bucket, t *Template) error {
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.Put(boltKey(t.Key()), v)
}

// Resolve prefers the personal template over the guild one.
func (s *BoltStore) Resolve(ctx context.Context, userID, guildID, name string) (*Template, error) {
	name = NormalizeName(name)
	var found *Template
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(templatesBucket)
		t, err := getTemplate(b, Key{ScopeUser, userID, name})
		if err == ErrNotFound && guildID != "" {
			t, err = getTemplate(b, Key{ScopeGuild, guildID, name})
		}
		found = t
		return err
	})
	return found, err
}

// Get retrieves a template by key.
func (s *BoltStore) Get(ctx context.Context, key Key) (*Template, error) {
	var found *Template
	err := s.db.View(func(tx *bolt.Tx) error {
		t, err := getTemplate(tx.Bucket(templatesBucket), normalizeKey(key))
		found = t
		return err
	})
	return found, err
}

// Create stores a new template.
func (s *BoltStore) Create(ctx context.Context, t *Template) error {
	if err := prepare(t); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(templatesBucket)
		if b.Get(boltKey(t.Key())) != nil {
			return ErrDuplicate
		}
		return putTemplate(b, t)
	})
}

// update runs fn on the template at key inside one write transaction and
// stores the result.
func (s *BoltStore) update(key Key, fn func(t *Template) error) error {
	key = normalizeKey(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(templatesBucket)
		t, err := getTemplate(b, key)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		return putTemplate(b, t)
	})
}

// Edit replaces template content.
func (s *BoltStore) Edit(ctx context.Context, key Key, authorID, content string, elevated bool) error {
	if err := ValidateContent(content); err != nil {
		return err
	}
	return s.update(key, func(t *Template) error {
		if !mayModify(t, authorID, elevated) {
			return ErrPermission
		}
		t.Content = content
		return nil
	})
}

// Delete removes a template.
func (s *BoltStore) Delete(ctx context.Context, key Key, authorID string, elevated bool) error {
	key = normalizeKey(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(templatesBucket)
		t, err := getTemplate(b, key)
		if err != nil {
			return err
		}
		if !mayModify(t, authorID, elevated) {
			return ErrPermission
		}
		return b.Delete(boltKey(key))
	})
}

// Transfer moves a personal template to newOwner.
func (s *BoltStore) Transfer(ctx context.Context, key Key, currentOwner, newOwner string) error {
	if key.Scope != ScopeUser {
		return ErrNotPersonal
	}
	key = normalizeKey(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(templatesBucket)
		t, err := getTemplate(b, key)
		if err != nil {
			return err
		}
		if t.OwnerID != currentOwner {
			return ErrPermission
		}
		dest := Key{ScopeUser, newOwner, key.Name}
		if b.Get(boltKey(dest)) != nil {
			return ErrDuplicate
		}
		if err := b.Delete(boltKey(key)); err != nil {
			return err
		}
		t.OwnerID = newOwner
		t.ScopeKey = newOwner
		return putTemplate(b, t)
	})
}

// IncrementUses bumps the counter inside a write transaction.
func (s *BoltStore) IncrementUses(ctx context.Context, key Key) error {
	return s.update(key, func(t *Template) error {
		t.Uses++
		return nil
	})
}

// List returns a scope's templates ordered by name.
func (s *BoltStore) List(ctx context.Context, scope Scope, scopeKey string) ([]*Template, error) {
	prefix := scopePrefix(scope, scopeKey)
	var out []*Template
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(templatesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var t Template
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			out = append(out, &t)
		}
		return nil
	})
	return out, err
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
