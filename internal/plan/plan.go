// Package plan turns declared data-access methods into binding plans: the
// cleaned SQL plus, for every parameter and result definition, the host
// type it binds and the adapter that marshals it. A plan is what a code
// generator needs to emit the implementation.
package plan

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/querymap/internal/manifest"
	"github.com/leapstack-labs/querymap/pkg/directive"
	"github.com/leapstack-labs/querymap/pkg/generation"
	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// ErrWidthMismatch is returned when a definition spans a different number
// of columns than its adapter reads.
var ErrWidthMismatch = errors.New("adapter width mismatch")

// Binding is one definition with its resolved host type and adapter.
type Binding struct {
	Definition directive.Definition
	HostType   mapping.TypeRef
	Adapter    *mapping.Descriptor
}

// Method is the plan of one data-access method.
type Method struct {
	Name       string
	SQL        string
	Callable   bool
	Parameters []Binding
	Results    []Binding
}

// Interface is the plan of one data-access interface.
type Interface struct {
	Key     generation.Key
	Methods []*Method
}

// MethodError reports the method a planning failure belongs to.
type MethodError struct {
	Interface string
	Method    string
	Err       error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Interface, e.Method, e.Err)
}

func (e *MethodError) Unwrap() error {
	return e.Err
}

// Builder builds plans against one manifest, registry and scope.
type Builder struct {
	manifest *manifest.Manifest
	registry *mapping.Registry
	scope    *mapping.Scope
	logger   *slog.Logger
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(m *manifest.Manifest, reg *mapping.Registry, scope *mapping.Scope, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{manifest: m, registry: reg, scope: scope, logger: logger}
}

// BuildInterface plans every method of iface. The first failing method
// aborts the build.
func (b *Builder) BuildInterface(iface manifest.Interface) (*Interface, error) {
	out := &Interface{
		Key:     generation.Key{Interface: iface.Name, Base: iface.Base},
		Methods: make([]*Method, 0, len(iface.Methods)),
	}
	for _, decl := range iface.Methods {
		m, err := b.BuildMethod(decl)
		if err != nil {
			return nil, &MethodError{Interface: iface.Name, Method: decl.Name, Err: err}
		}
		out.Methods = append(out.Methods, m)
	}
	b.logger.Debug("planned interface", "interface", iface.Name, "methods", len(out.Methods))
	return out, nil
}

// BuildMethod compiles the method's SQL and resolves every definition.
func (b *Builder) BuildMethod(decl manifest.Method) (*Method, error) {
	stmt, err := directive.Compile(decl.SQL, decl.Callable)
	if err != nil {
		return nil, err
	}

	m := &Method{Name: decl.Name, SQL: stmt.SQL, Callable: decl.Callable}
	for _, p := range stmt.Parameters {
		host, err := b.parameterType(decl, p)
		if err != nil {
			return nil, err
		}
		binding, err := b.bind(p, host, len(p.SQLIndexes)+len(p.SQLNames))
		if err != nil {
			return nil, err
		}
		m.Parameters = append(m.Parameters, binding)
	}
	for _, r := range stmt.Results {
		host, err := b.resultType(decl, r)
		if err != nil {
			return nil, err
		}
		binding, err := b.bind(r, host, len(r.Columns)+len(r.Indexes))
		if err != nil {
			return nil, err
		}
		m.Results = append(m.Results, binding)
	}
	return m, nil
}

func (b *Builder) bind(def directive.Definition, host string, columns int) (Binding, error) {
	desc, err := b.registry.ResolveDefinition(b.scope, def, mapping.TypeRef(host))
	if err != nil {
		return Binding{}, err
	}
	if w := desc.Strategy.Width(); w > 0 && w != columns {
		base := directive.BaseOf(def)
		return Binding{}, fmt.Errorf("%w: %s adapter %q reads %d columns, definition at %d spans %d",
			ErrWidthMismatch, mapping.DirectionOf(def), base.MappingType, w, base.Start, columns)
	}
	return Binding{Definition: def, HostType: mapping.TypeRef(host), Adapter: desc}, nil
}

func (b *Builder) parameterType(decl manifest.Method, p *directive.ParameterDefinition) (string, error) {
	if p.ParameterIndex > len(decl.Parameters) {
		return "", fmt.Errorf("directive refers to argument %d but the method has %d", p.ParameterIndex, len(decl.Parameters))
	}
	return b.manifest.FieldType(decl.Parameters[p.ParameterIndex-1], p.FieldPath)
}

func (b *Builder) resultType(decl manifest.Method, r *directive.ResultDefinition) (string, error) {
	switch {
	case r.IsMapKey:
		if decl.Key == "" {
			return "", errors.New("map key directive on a method without a key type")
		}
		return decl.Key, nil
	case decl.Returns == "":
		return "", errors.New("result directive on a method without a return type")
	case r.ConstructorParameterIndex > 0:
		return b.manifest.ConstructorParameter(decl.Returns, r.ConstructorParameterIndex)
	default:
		return b.manifest.FieldType(decl.Returns, r.FieldPath)
	}
}
