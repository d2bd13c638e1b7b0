package tools

import "sync"

// Registry is a name-keyed mapping of tools. Registering under an
// existing name replaces the previous binding (last write wins). The
// registry may be mutated concurrently with in-flight executions; the
// lock is held only for individual map operations, never across a tool
// invocation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name and returns it, or nil if absent.
func (r *Registry) Unregister(name string) Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tools[name]
	delete(r.tools, name)
	return t
}

// Get retrieves a tool by name. The second return reports whether the
// name was registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools. No ordering guarantee.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// IsEmpty reports whether the registry has no tools.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Definitions projects every registered tool to its Definition, exactly
// once per name. This snapshot is what one turn's model input carries;
// it is not re-validated against later registry mutations.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Define(t))
	}
	return out
}
