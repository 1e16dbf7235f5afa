package search

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/gg/gmap"
)

// Factory builds a provider from shared options.
type Factory func(opts Options) (Provider, error)

var (
	defaultRegistry = NewRegistry()

	Register  = defaultRegistry.Register
	New       = defaultRegistry.New
	Available = defaultRegistry.Available
)

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory, 24),
	}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New instantiates the named provider. Unknown names report the full list of
// registered providers so CLI users can self-correct.
func (r *Registry) New(name string, opts Options) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", name, r.Available())
	}
	return f(opts)
}

func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := gmap.ToSlice(r.factories, func(k string, v Factory) string { return k })
	sort.Strings(names)
	return names
}
