package console

import (
	"sort"
	"strings"
	"sync"
)

// Registry holds command definitions in registration order. It is append-only.
type Registry struct {
	mu    sync.RWMutex
	order []*CommandDefinition
	byKey map[string]*CommandDefinition
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]*CommandDefinition{}}
}

// Register adds def. The same pointer is returned by later lookups.
func (r *Registry) Register(def *CommandDefinition) error {
	if def == nil {
		return &InvalidDefinitionError{Reason: "definition is nil"}
	}
	if strings.TrimSpace(def.Name) == "" || strings.ContainsFunc(def.Name, isSpace) {
		return &InvalidDefinitionError{Name: def.Name, Reason: "name must be a single non-empty word"}
	}
	if def.Renderer == nil {
		return &InvalidDefinitionError{Name: def.Name, Reason: "renderer is required"}
	}
	seen := map[string]bool{}
	for _, arg := range def.Args {
		if arg.Name == "" {
			return &InvalidDefinitionError{Name: def.Name, Reason: "argument name is empty"}
		}
		if seen[arg.Name] {
			return &InvalidDefinitionError{Name: def.Name, Reason: "argument --" + arg.Name + " declared twice"}
		}
		seen[arg.Name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[def.Name]; exists {
		return &DuplicateNameError{Name: def.Name}
	}
	r.byKey[def.Name] = def
	r.order = append(r.order, def)
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (*CommandDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byKey[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return def, nil
}

// Commands returns definitions in registration order.
func (r *Registry) Commands(includeHidden bool) []*CommandDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*CommandDefinition, 0, len(r.order))
	for _, def := range r.order {
		if def.Hidden && !includeHidden {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Names returns the sorted names of visible commands, for completion.
func (r *Registry) Names() []string {
	defs := r.Commands(false)
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
