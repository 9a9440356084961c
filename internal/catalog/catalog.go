// Package catalog holds the static declarations of every node type the
// engine can run: declared input/output port types, the container image that
// implements the scan, and presentation metadata. The registry is
// constructed explicitly and injected into the validator and dispatcher;
// nothing in the engine consults a process-wide singleton.
package catalog

import (
	"fmt"
	"sort"

	"github.com/portwhine/portwhine/internal/model"
)

// FieldDefinition describes one configurable scan parameter of a node type,
// for catalog listings.
type FieldDefinition struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// NodeDefinition is the static declaration of one node type.
type NodeDefinition struct {
	Name        string               `json:"name"`
	Kind        model.NodeKind       `json:"kind"`
	DisplayName string               `json:"display_name"`
	Category    model.WorkerCategory `json:"category,omitempty"`
	Description string               `json:"description,omitempty"`
	Inputs      []model.PortType     `json:"inputs"`
	Outputs     []model.PortType     `json:"outputs"`
	Image       string               `json:"image_name"`
	Fields      []FieldDefinition    `json:"config_fields,omitempty"`
}

// HasInput reports whether the node type declares t as an input port type.
func (d *NodeDefinition) HasInput(t model.PortType) bool {
	return containsPort(d.Inputs, t)
}

// HasOutput reports whether the node type declares t as an output port type.
func (d *NodeDefinition) HasOutput(t model.PortType) bool {
	return containsPort(d.Outputs, t)
}

func containsPort(ports []model.PortType, t model.PortType) bool {
	for _, p := range ports {
		if p == t {
			return true
		}
	}
	return false
}

// Registry maps node type tags to their definitions.
type Registry struct {
	defs map[string]*NodeDefinition
}

// NewRegistry builds a registry from the given definitions. Duplicate names
// and definitions that contradict their kind (triggers with inputs, nodes
// without an image) are rejected.
func NewRegistry(defs ...NodeDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*NodeDefinition, len(defs))}
	for i := range defs {
		d := defs[i]
		if d.Name == "" {
			return nil, fmt.Errorf("node definition without a name")
		}
		if _, ok := r.defs[d.Name]; ok {
			return nil, fmt.Errorf("duplicate node definition %q", d.Name)
		}
		if d.Image == "" {
			return nil, fmt.Errorf("node definition %q has no image", d.Name)
		}
		switch d.Kind {
		case model.KindTrigger:
			if len(d.Inputs) != 0 {
				return nil, fmt.Errorf("trigger %q must not declare inputs", d.Name)
			}
		case model.KindWorker:
			if len(d.Inputs) == 0 {
				return nil, fmt.Errorf("worker %q must declare at least one input", d.Name)
			}
		default:
			return nil, fmt.Errorf("node definition %q has unknown kind %q", d.Name, d.Kind)
		}
		r.defs[d.Name] = &d
	}
	return r, nil
}

// Get returns the definition for the node type tag, or false.
func (r *Registry) Get(name string) (*NodeDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// All returns every definition, sorted by name.
func (r *Registry) All() []*NodeDefinition {
	out := make([]*NodeDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Triggers returns only the trigger definitions, sorted by name.
func (r *Registry) Triggers() []*NodeDefinition {
	return r.byKind(model.KindTrigger)
}

// Workers returns only the worker definitions, sorted by name.
func (r *Registry) Workers() []*NodeDefinition {
	return r.byKind(model.KindWorker)
}

func (r *Registry) byKind(kind model.NodeKind) []*NodeDefinition {
	var out []*NodeDefinition
	for _, d := range r.All() {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
