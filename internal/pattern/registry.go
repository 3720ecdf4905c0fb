package pattern

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages available reasoning patterns by name.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]Pattern
	selector Selector
}

// Selector decides which pattern to use for a query when the caller does not
// name one explicitly.
type Selector interface {
	Select(query string, metadata map[string]interface{}, available []Pattern) (Pattern, error)
}

// DefaultSelector honors an explicit "pattern" metadata hint, then falls back
// to react when registered, then to any registered pattern.
type DefaultSelector struct{}

func (s *DefaultSelector) Select(query string, metadata map[string]interface{}, available []Pattern) (Pattern, error) {
	if hint, ok := metadata["pattern"].(string); ok {
		for _, p := range available {
			if p.Name() == hint {
				return p, nil
			}
		}
	}
	for _, p := range available {
		if p.Name() == "react" {
			return p, nil
		}
	}
	if len(available) > 0 {
		return available[0], nil
	}
	return nil, fmt.Errorf("no suitable pattern found")
}

// NewRegistry creates an empty pattern registry.
func NewRegistry() *Registry {
	return &Registry{
		patterns: make(map[string]Pattern),
		selector: &DefaultSelector{},
	}
}

// Register adds a pattern to the registry.
func (r *Registry) Register(p Pattern) error {
	if p == nil {
		return fmt.Errorf("cannot register nil pattern")
	}
	if p.Name() == "" {
		return fmt.Errorf("cannot register pattern with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[p.Name()] = p
	return nil
}

// Get retrieves a pattern by name.
func (r *Registry) Get(name string) (Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patterns[name]
	if !ok {
		return nil, NewError(KindNotFound, name, "pattern not registered")
	}
	return p, nil
}

// List returns all registered patterns, ordered by name.
func (r *Registry) List() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Pattern, 0, len(names))
	for _, name := range names {
		out = append(out, r.patterns[name])
	}
	return out
}

// SelectForQuery chooses a pattern for the given query and metadata.
func (r *Registry) SelectForQuery(query string, metadata map[string]interface{}) (Pattern, error) {
	available := r.List()
	if len(available) == 0 {
		return nil, fmt.Errorf("no patterns registered")
	}

	r.mu.RLock()
	selector := r.selector
	r.mu.RUnlock()
	return selector.Select(query, metadata, available)
}

// SetSelector replaces the selection strategy.
func (r *Registry) SetSelector(s Selector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selector = s
}
