// Package tools defines the capability surface the executor can dispatch to:
// a name-keyed registry of Tool implementations, plus the built-in filesystem
// tools. Every filesystem-touching tool validates its target through the
// sandbox before performing any I/O.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrToolNotFound is returned when a registry lookup misses.
var ErrToolNotFound = errors.New("tool not found")

// ParameterSpec describes one tool parameter for prompt embedding and
// argument validation.
type ParameterSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Tool is a named capability the executor can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParameterSpec
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry is a name-keyed collection of tools. It is read-mostly: tools are
// registered at startup and shared read-only across concurrent invocations.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. Registering the same name twice replaces the earlier
// entry, which keeps startup wiring idempotent.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	if t.Name() == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Warn("Replacing registered tool", zap.String("tool", t.Name()))
	}
	r.tools[t.Name()] = t

	r.logger.Info("Tool registered", zap.String("tool", t.Name()))
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders a one-line-per-tool summary for prompt embedding.
func (r *Registry) Describe() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		t := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s", t.Name(), t.Description())
		params := t.Parameters()
		if len(params) > 0 {
			parts := make([]string, 0, len(params))
			for _, p := range params {
				s := p.Name
				if p.Required {
					s += " (required)"
				}
				parts = append(parts, s)
			}
			fmt.Fprintf(&b, " [args: %s]", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}
