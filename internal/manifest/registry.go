package manifest

import (
	"fmt"

	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// Strategy is the marshalling strategy of a manifest-declared adapter.
type Strategy struct {
	Adapter string
	Columns int
}

// Name implements mapping.Strategy.
func (s Strategy) Name() string { return s.Adapter }

// Width implements mapping.Strategy.
func (s Strategy) Width() int { return s.Columns }

// DeclareTypes adds the supertypes of every declared type to h.
func (m *Manifest) DeclareTypes(h *mapping.Hierarchy) {
	for name, decl := range m.Types {
		supers := make([]mapping.TypeRef, len(decl.Extends))
		for i, s := range decl.Extends {
			supers[i] = mapping.TypeRef(s)
		}
		h.Declare(mapping.TypeRef(name), supers...)
	}
}

// RegisterAdapters registers the declared adapters in scope, or in the
// global scope for adapters marked global.
func (m *Manifest) RegisterAdapters(reg *mapping.Registry, scope *mapping.Scope) error {
	for _, a := range m.Adapters {
		desc := mapping.Descriptor{
			MappableTypes: make([]mapping.TypeRef, len(a.Types)),
			Strategy:      Strategy{Adapter: a.Name, Columns: a.Width},
		}
		for i, t := range a.Types {
			desc.MappableTypes[i] = mapping.TypeRef(t)
		}

		target := scope
		if a.Global {
			target = mapping.Global
		}
		for _, dir := range directions(a.Direction) {
			if err := reg.Register(target, dir, a.Name, desc); err != nil {
				return fmt.Errorf("failed to register adapter %q: %w", a.Name, err)
			}
		}
	}
	return nil
}

// UnregisterAdapters removes the adapters registered by RegisterAdapters.
func (m *Manifest) UnregisterAdapters(reg *mapping.Registry, scope *mapping.Scope) {
	for _, a := range m.Adapters {
		target := scope
		if a.Global {
			target = mapping.Global
		}
		for _, dir := range directions(a.Direction) {
			reg.Unregister(target, dir, a.Name)
		}
	}
}

func directions(d string) []mapping.Direction {
	switch d {
	case DirectionParameter:
		return []mapping.Direction{mapping.Parameter}
	case DirectionResult:
		return []mapping.Direction{mapping.Result}
	default:
		return []mapping.Direction{mapping.Parameter, mapping.Result}
	}
}
