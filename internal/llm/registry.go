package llm

import "fmt"

// Registry holds the constructed set of backends. It is built once at startup
// and passed into the Gateway explicitly so tests can substitute doubles.
type Registry struct {
	order    []string
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend. Registration order determines fallback order.
func (r *Registry) Register(b Backend) {
	name := b.Name()
	if _, ok := r.backends[name]; !ok {
		r.order = append(r.order, name)
	}
	r.backends[name] = b
}

// Get returns the backend with the given name.
func (r *Registry) Get(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return b, nil
}

// Names returns backend names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
