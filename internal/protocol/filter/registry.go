package filter

import "sync"

// Registry holds the filter factories applied to every session created
// against it.
type Registry struct {
	mu        sync.Mutex
	factories []Factory
	installed map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{installed: make(map[string]struct{})}
}

// Default is the process-wide registry used when a session is created
// without one.
var Default = NewRegistry()

func (r *Registry) Add(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, f)
}

// InstallOnce adds f unless a factory was already installed under key.
// It reports whether f was added.
func (r *Registry) InstallOnce(key string, f Factory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.installed[key]; ok {
		return false
	}
	r.installed[key] = struct{}{}
	r.factories = append(r.factories, f)
	return true
}

// Factories returns a snapshot in installation order.
func (r *Registry) Factories() []Factory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Factory, len(r.factories))
	copy(out, r.factories)
	return out
}
