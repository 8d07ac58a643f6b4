package source

import (
	"fmt"

	"github.com/dukanov/research-monitor/internal/ports"
)

// Registry maps source names to their implementations so the app layer can
// enable sources from configuration without knowing concrete types.
type Registry struct {
	sources map[string]ports.ItemSource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.ItemSource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source ports.ItemSource) {
	if r.sources == nil {
		r.sources = map[string]ports.ItemSource{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.ItemSource, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Enabled resolves every named source, failing on the first unknown name.
func (r *Registry) Enabled(names []string) ([]ports.ItemSource, error) {
	sources := make([]ports.ItemSource, 0, len(names))
	for _, name := range names {
		source, err := r.Resolve(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}
