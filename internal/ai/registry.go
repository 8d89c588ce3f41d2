package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ProviderFactory builds a Provider for model. An empty model means the
// provider's configured default.
type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry maps provider names to factories. Names are matched
// case-insensitively; registering a name twice replaces the factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get builds the named provider, or fails when no factory is registered
// under that name.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown completion provider: %s", name)
	}
	return f(ctx, model)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
