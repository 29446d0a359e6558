package operators

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned for unregistered operation names.
var ErrNotFound = errors.New("unknown operation")

// Registry stores registered operations
type Registry struct {
	operators map[string]Operator
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{operators: make(map[string]Operator)}
}

// globalRegistry is the global operation registry
var globalRegistry = NewRegistry()

// GlobalRegistry returns the global operation registry
func GlobalRegistry() *Registry {
	return globalRegistry
}

// Register registers an operation globally
func Register(op Operator) {
	globalRegistry.Register(op)
}

// Get retrieves an operation by name
func Get(name string) (Operator, error) {
	return globalRegistry.Get(name)
}

// List returns all registered operations
func List() []Operator {
	return globalRegistry.List()
}

// ListByCategory returns operations in a specific category
func ListByCategory(category Category) []Operator {
	return globalRegistry.ListByCategory(category)
}

// Register registers an operation in this registry. Re-registration
// replaces the previous entry.
func (r *Registry) Register(op Operator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[strings.ToLower(op.Name())] = op
}

// Reset clears all registered operations (for testing)
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators = make(map[string]Operator)
}

// Get retrieves an operation by name, case-insensitively.
func (r *Registry) Get(name string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrNotFound, name)
	}
	return op, nil
}

// List returns all registered operations sorted by name.
func (r *Registry) List() []Operator {
	r.mu.RLock()
	result := make([]Operator, 0, len(r.operators))
	for _, op := range r.operators {
		result = append(result, op)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// ListByCategory returns operations in a specific category
func (r *Registry) ListByCategory(category Category) []Operator {
	result := []Operator{}
	for _, op := range r.List() {
		if op.Category() == category {
			result = append(result, op)
		}
	}
	return result
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	ops := r.List()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name()
	}
	return names
}
