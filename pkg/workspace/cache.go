package workspace

import (
	"sort"
	"sync"

	"github.com/chicogong/tagforge/pkg/schemas"
)

// Entry is one named intermediate in a session.
type Entry struct {
	Key        string
	Path       string
	ProducedBy string
	Info       *schemas.Dimensions
}

// MediaCache maps GScript keys to files inside a session. Keys are kept in
// insertion order.
type MediaCache struct {
	session *Session

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

func newMediaCache(s *Session) *MediaCache {
	return &MediaCache{session: s, entries: make(map[string]*Entry)}
}

// Get returns the entry for key.
func (c *MediaCache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Has reports whether key is bound.
func (c *MediaCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set binds key to path. When key already pointed at a different file that
// no other key references, the old file is released.
func (c *MediaCache) Set(key, path, producedBy string) *Entry {
	c.mu.Lock()
	old, existed := c.entries[key]
	e := &Entry{Key: key, Path: path, ProducedBy: producedBy}
	c.entries[key] = e
	if !existed {
		c.order = append(c.order, key)
	}
	stale := ""
	if existed && old.Path != path && !c.referencedLocked(old.Path) {
		stale = old.Path
	}
	c.mu.Unlock()

	if stale != "" && c.session != nil {
		c.session.Release(stale)
	}
	return e
}

// Remove unbinds key and releases its file if nothing else references it.
func (c *MediaCache) Remove(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	stale := ok && !c.referencedLocked(e.Path)
	c.mu.Unlock()

	if stale && c.session != nil {
		c.session.Release(e.Path)
	}
}

func (c *MediaCache) referencedLocked(path string) bool {
	for _, e := range c.entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

// Keys returns the bound keys in insertion order.
func (c *MediaCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Snapshot returns the entries sorted by key.
func (c *MediaCache) Snapshot() []Entry {
	c.mu.RLock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of bound keys.
func (c *MediaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset clears all bindings. Files stay on disk until the session closes.
func (c *MediaCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.order = nil
	c.mu.Unlock()
}
