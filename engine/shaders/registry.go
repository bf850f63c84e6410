// Package shaders maps logical shader filenames to their source text. The
// table is embedded in the binary; an optional filesystem watcher overlays
// edited sources on top of it for live shader iteration.
package shaders

import (
	"embed"
	"io/fs"
	"path"
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
)

//go:embed hlsl/*.hlsl
var embedded embed.FS

// Registry resolves logical shader names for the device's shader compiler.
// Explicitly constructed and owned by the host renderer; not a process
// global. Safe for concurrent Lookup against watcher overrides.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]string
	overrides map[string]string
	// generation increments whenever an override lands; hosts poll it to
	// know when cached pipelines must be rebuilt.
	generation uint64
}

func NewRegistry() *Registry {
	r := &Registry{
		sources:   make(map[string]string),
		overrides: make(map[string]string),
	}
	entries, err := fs.ReadDir(embedded, "hlsl")
	if err != nil {
		core.LogFatal("shader registry: embedded table unreadable: %v", err)
	}
	for _, e := range entries {
		data, err := embedded.ReadFile(path.Join("hlsl", e.Name()))
		if err != nil {
			core.LogFatal("shader registry: %s: %v", e.Name(), err)
		}
		r.sources[e.Name()] = string(data)
	}
	core.LogDebug("shader registry: %d embedded sources", len(r.sources))
	return r
}

// Lookup returns the source text for a logical shader name. A miss is logged
// and returns ("", false); the caller treats the resulting pipeline
// compilation failure as fatal.
func (r *Registry) Lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if src, ok := r.overrides[name]; ok {
		return src, true
	}
	src, ok := r.sources[name]
	if !ok {
		core.LogError("shader registry: no source for %q", name)
		return "", false
	}
	return src, true
}

// Names returns every known logical shader name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	return names
}

// Generation returns the override generation counter.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Registry) setOverride(name, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = source
	r.generation++
}

func (r *Registry) isEmbedded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[name]
	return ok
}

func (r *Registry) clearOverride(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overrides[name]; ok {
		delete(r.overrides, name)
		r.generation++
	}
}
