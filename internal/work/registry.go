package work

import (
	"sort"
	"sync"
)

// Registry holds all registered job types and provides lookup by name.
type Registry struct {
	types map[string]*JobType
	mu    sync.RWMutex
}

// NewRegistry creates a new job type registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*JobType),
	}
}

// Register adds a job type to the registry.
// If a job type with the same name already exists, it is replaced.
func (r *Registry) Register(jt *JobType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types[jt.Name] = jt
}

// Get returns a job type by name, or nil if not found.
func (r *Registry) Get(name string) *JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.types[name]
}

// Has returns true if a job type with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[name]
	return exists
}

// Names returns all registered job names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered job types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.types)
}
