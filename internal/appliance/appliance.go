package appliance

import (
	"context"

	"github.com/thatsimonsguy/purifier-controller/internal/model"
)

// Setter changes one property on the appliance and returns the value the
// appliance reports afterwards.
type Setter func(ctx context.Context, value model.Value) (model.Value, error)

// Appliance is the surface the automation controller needs from a device.
type Appliance interface {
	Properties() model.Properties
	Capabilities() *Registry
}

// Registry maps property names to setters. Names keep their registration
// order, which is the order commands are applied in.
type Registry struct {
	names   []string
	setters map[string]Setter
}

func NewRegistry() *Registry {
	return &Registry{setters: make(map[string]Setter)}
}

// Register adds or replaces the setter for name.
func (r *Registry) Register(name string, s Setter) {
	if _, exists := r.setters[name]; !exists {
		r.names = append(r.names, name)
	}
	r.setters[name] = s
}

func (r *Registry) Lookup(name string) (Setter, bool) {
	s, ok := r.setters[name]
	return s, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.setters[name]
	return ok
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
