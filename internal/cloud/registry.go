package cloud

import (
	"fmt"
	"sort"
	"sync"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// Registry resolves the adapter for a provider. Providers without credentials
// are simply never registered.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

func (r *Registry) For(p models.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, p)
	}
	return a, nil
}

func (r *Registry) Configured(p models.Provider) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[p]
	return ok
}

func (r *Registry) Providers() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
