// Package dcplog implements DCP log templates and the slave-side log buffer.
//
// A template fixes category, level, message and argument types of a log
// entry; entries on the wire only carry the template id and packed arguments.
// Templates live in a Registry built once per process and passed by
// reference to the components that log.
package dcplog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/types"
)

var (
	ErrUnknownTemplate   = errors.New("dcplog: unknown template")
	ErrDuplicateTemplate = errors.New("dcplog: duplicate template id")
	ErrArgCount          = errors.New("dcplog: argument count does not match template")
	ErrArgType           = errors.New("dcplog: argument does not match template type")
)

// Template describes one log message
type Template struct {
	ID       uint8
	Category types.LogCategory
	Level    types.LogLevel
	// Message holds one %<type> placeholder per argument, e.g. "%float64"
	Message string
	Args    []types.DataType
}

// Registry is a set of templates indexed by id
type Registry struct {
	mu        sync.RWMutex
	templates map[uint8]Template
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{templates: make(map[uint8]Template)}
}

// FromDescription builds a registry from the log templates of a slave description
func FromDescription(d *description.SlaveDescription) (*Registry, error) {
	r := NewRegistry()
	for _, lt := range d.LogTemplates {
		level, ok := description.ParseLogLevel(lt.Level)
		if !ok {
			return nil, fmt.Errorf("dcplog: template %d: unknown level %q", lt.ID, lt.Level)
		}
		t := Template{
			ID:       lt.ID,
			Category: types.LogCategory(lt.Category),
			Level:    level,
			Message:  lt.Message,
		}
		for _, name := range lt.Args {
			dt, ok := types.ParseDataType(name)
			if !ok {
				return nil, fmt.Errorf("dcplog: template %d: unknown argument type %q", lt.ID, name)
			}
			t.Args = append(t.Args, dt)
		}
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds t to the registry
func (r *Registry) Register(t Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateTemplate, t.ID)
	}
	t.Args = append([]types.DataType(nil), t.Args...)
	r.templates[t.ID] = t
	return nil
}

// Lookup returns the template with the given id
func (r *Registry) Lookup(id uint8) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// Templates returns all templates ordered by id
func (r *Registry) Templates() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of templates
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
