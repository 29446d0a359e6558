package tags

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode selects how a primitive's argument text is prepared.
type Mode int

const (
	// Eager arguments are formatted first. Embeds, views and files
	// produced while formatting them flow to the enclosing output.
	Eager Mode = iota

	// Lazy arguments are passed raw.
	Lazy

	// Component arguments are formatted first and the structured output
	// produced by them is handed to the primitive in Call.Inner.
	Component
)

// Call is one primitive invocation.
type Call struct {
	// Name is the name the primitive was invoked with.
	Name string
	Args string

	// Inner holds the structured output of a component primitive's
	// arguments.
	Inner *Output

	parts []string
}

// Parts returns the '|' separated arguments.
func (c *Call) Parts() []string {
	if c.parts == nil {
		c.parts = SplitArgs(c.Args)
	}
	return c.parts
}

// Part returns the i-th argument, or "" when absent.
func (c *Call) Part(i int) string {
	p := c.Parts()
	if i < 0 || i >= len(p) {
		return ""
	}
	return p[i]
}

// NumParts returns the number of arguments, zero when the argument text
// is empty.
func (c *Call) NumParts() int {
	if c.Args == "" {
		return 0
	}
	return len(c.Parts())
}

// Func implements a primitive. The result is normalized with Normalize.
type Func func(ctx context.Context, tc *Context, call *Call) (any, error)

// Primitive is a registered tag function.
type Primitive struct {
	Name    string
	Aliases []string
	Mode    Mode
	Usage   string
	Fn      Func
}

// Registry maps names and aliases to primitives.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]*Primitive
	prims []*Primitive
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]*Primitive{}}
}

// Register adds p under its name and aliases. Names are case-insensitive
// and must be unique.
func (r *Registry) Register(p *Primitive) error {
	if p.Fn == nil {
		return fmt.Errorf("primitive '%s' has no function", p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := append([]string{p.Name}, p.Aliases...)
	for _, k := range keys {
		if _, dup := r.byKey[strings.ToLower(k)]; dup {
			return fmt.Errorf("primitive '%s' already registered", k)
		}
	}
	for _, k := range keys {
		r.byKey[strings.ToLower(k)] = p
	}
	r.prims = append(r.prims, p)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(p *Primitive) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Get looks a primitive up by name or alias.
func (r *Registry) Get(name string) (*Primitive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[strings.ToLower(name)]
	return p, ok
}

// Names returns every registered name and alias, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Primitives returns the registered primitives in registration order.
func (r *Registry) Primitives() []*Primitive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Primitive(nil), r.prims...)
}
