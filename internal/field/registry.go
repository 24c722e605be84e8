package field

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps node type names to their shared schemas.
// Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema. Registering a second schema under the same type
// name is an error.
func (r *Registry) Register(s *Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[s.TypeName()]; exists {
		return fmt.Errorf("node type %q already registered", s.TypeName())
	}
	r.schemas[s.TypeName()] = s
	return nil
}

// Lookup returns the schema for a node type.
func (r *Registry) Lookup(typeName string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[typeName]
	return s, ok
}

// TypeNames returns the registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
