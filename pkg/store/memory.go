package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store
// Thread-safe for concurrent access
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[Key]*Template
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[Key]*Template),
	}
}

// Resolve returns the personal template, then the guild template
func (m *MemoryStore) Resolve(ctx context.Context, userID, guildID, name string) (*Template, error) {
	name = NormalizeName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if t, ok := m.templates[Key{ScopeUser, userID, name}]; ok {
		return copyTemplate(t), nil
	}
	if guildID != "" {
		if t, ok := m.templates[Key{ScopeGuild, guildID, name}]; ok {
			return copyTemplate(t), nil
		}
	}
	return nil, ErrNotFound
}

// Get retrieves a template by key
func (m *MemoryStore) Get(ctx context.Context, key Key) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[normalizeKey(key)]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent external modifications
	return copyTemplate(t), nil
}

// Create stores a new template
func (m *MemoryStore) Create(ctx context.Context, t *Template) error {
	if err := prepare(t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[t.Key()]; exists {
		return ErrDuplicate
	}
	m.templates[t.Key()] = copyTemplate(t)
	return nil
}

// Edit replaces template content
func (m *MemoryStore) Edit(ctx context.Context, key Key, authorID, content string, elevated bool) error {
	if err := ValidateContent(content); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[normalizeKey(key)]
	if !ok {
		return ErrNotFound
	}
	if !mayModify(t, authorID, elevated) {
		return ErrPermission
	}
	t.Content = content
	return nil
}

// Delete removes a template
func (m *MemoryStore) Delete(ctx context.Context, key Key, authorID string, elevated bool) error {
	key = normalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[key]
	if !ok {
		return ErrNotFound
	}
	if !mayModify(t, authorID, elevated) {
		return ErrPermission
	}
	delete(m.templates, key)
	return nil
}

// Transfer moves a personal template to newOwner
func (m *MemoryStore) Transfer(ctx context.Context, key Key, currentOwner, newOwner string) error {
	if key.Scope != ScopeUser {
		return ErrNotPersonal
	}
	key = normalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[key]
	if !ok {
		return ErrNotFound
	}
	if t.OwnerID != currentOwner {
		return ErrPermission
	}
	dest := Key{ScopeUser, newOwner, key.Name}
	if _, exists := m.templates[dest]; exists {
		return ErrDuplicate
	}
	delete(m.templates, key)
	t.OwnerID = newOwner
	t.ScopeKey = newOwner
	m.templates[dest] = t
	return nil
}

// IncrementUses bumps the use counter
func (m *MemoryStore) IncrementUses(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.templates[normalizeKey(key)]
	if !ok {
		return ErrNotFound
	}
	t.Uses++
	return nil
}

// List returns a scope's templates sorted by name
func (m *MemoryStore) List(ctx context.Context, scope Scope, scopeKey string) ([]*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Template
	for k, t := range m.templates {
		if k.Scope == scope && k.ScopeKey == scopeKey {
			out = append(out, copyTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close is a no-op for memory store
func (m *MemoryStore) Close() error {
	return nil
}

func copyTemplate(t *Template) *Template {
	c := *t
	return &c
}
