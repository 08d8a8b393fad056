// Package tools provides the builtin agent tools and their registry.
package tools

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Tool is one capability an agent can invoke from its reasoning loop.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to implementations. Populate at startup; reads
// are lock-free-safe afterwards via the RWMutex.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A duplicate name logs a warning and the later
// registration wins.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name()]; ok {
		slog.Warn("tools: duplicate registration", "tool", t.Name())
	}
	r.tools[t.Name()] = t
}

// Resolve returns the named tool, or false when unknown.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptions returns name -> description for prompt construction,
// restricted to allowed when non-empty.
func (r *Registry) Descriptions(allowed []string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	if len(allowed) == 0 {
		for name, t := range r.tools {
			out[name] = t.Description()
		}
		return out
	}
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			out[name] = t.Description()
		}
	}
	return out
}
