package mapping

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/querymap/pkg/directive"
)

// Direction selects the parameter or the result adapter tables.
type Direction int

// Direction constants.
const (
	Parameter Direction = iota
	Result
)

func (d Direction) String() string {
	if d == Result {
		return "result"
	}
	return "parameter"
}

// DirectionOf returns the direction a definition is resolved in.
func DirectionOf(def directive.Definition) Direction {
	if def.Kind() == directive.KindResult {
		return Result
	}
	return Parameter
}

// Strategy is the marshalling strategy behind an adapter. The generator
// uses it to emit the actual read/write code.
type Strategy interface {
	// Name identifies the strategy.
	Name() string
	// Width is the number of physical columns or bind positions the
	// strategy reads or writes, 0 when it accepts any number.
	Width() int
}

// Descriptor describes one registered adapter.
type Descriptor struct {
	// TypeName is the name directives refer to. Empty for auto entries.
	TypeName string
	// MappableTypes are the host types the adapter may be applied to.
	MappableTypes []TypeRef
	Strategy      Strategy
}

// Accepts reports whether t is assignable to one of the mappable types.
func (d *Descriptor) Accepts(h *Hierarchy, t TypeRef) bool {
	for _, m := range d.MappableTypes {
		if h.AssignableTo(t, m) {
			return true
		}
	}
	return false
}

// Scope isolates adapter registrations of one consumer from another.
// Scopes compare by identity.
type Scope struct {
	id   uint64
	name string
}

var scopeIDs atomic.Uint64

// Global is the fallback scope consulted when a name is not registered in
// the requesting scope.
var Global = &Scope{name: "global"}

// NewScope returns a new isolation scope. The name is used for diagnostics
// only; two scopes with the same name are distinct.
func NewScope(name string) *Scope {
	return &Scope{id: scopeIDs.Add(1), name: name}
}

// Name returns the diagnostic name of the scope.
func (s *Scope) Name() string { return s.name }

func (s *Scope) String() string {
	if s == Global {
		return s.name
	}
	return fmt.Sprintf("%s#%d", s.name, s.id)
}

// tables holds the name-keyed adapters of one scope.
type tables struct {
	mu     sync.RWMutex
	byName [2]map[string]*Descriptor
}

func newTables() *tables {
	return &tables{byName: [2]map[string]*Descriptor{
		make(map[string]*Descriptor),
		make(map[string]*Descriptor),
	}}
}

func (t *tables) get(dir Direction, name string) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byName[dir][name]
	return d, ok
}

// Registry resolves mapping type names and host types to adapters.
// It is safe for concurrent use; writes to one scope are serialized and a
// completed write is visible to every later lookup.
type Registry struct {
	mu     sync.Mutex
	scopes map[*Scope]*tables

	autoMu sync.RWMutex
	auto   [2]map[TypeRef]*Descriptor

	hierarchy *Hierarchy
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil hierarchy uses
// BuiltinHierarchy, a nil logger discards output.
func NewRegistry(hierarchy *Hierarchy, logger *slog.Logger) *Registry {
	if hierarchy == nil {
		hierarchy = BuiltinHierarchy()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		scopes: make(map[*Scope]*tables),
		auto: [2]map[TypeRef]*Descriptor{
			make(map[TypeRef]*Descriptor),
			make(map[TypeRef]*Descriptor),
		},
		hierarchy: hierarchy,
		logger:    logger,
	}
}

// Hierarchy returns the type table used for compatibility checks.
func (r *Registry) Hierarchy() *Hierarchy { return r.hierarchy }

func (r *Registry) tablesFor(scope *Scope, create bool) *tables {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.scopes[scope]
	if !ok && create {
		t = newTables()
		r.scopes[scope] = t
	}
	return t
}

// Register adds a named adapter to scope. It fails with
// ErrTypeAlreadyRegistered if the name is already taken in that scope;
// registrations in other scopes do not conflict.
func (r *Registry) Register(scope *Scope, dir Direction, name string, desc Descriptor) error {
	if scope == nil {
		return fmt.Errorf("register %q: %w", name, ErrNilScope)
	}
	if name == "" || name == directive.AutoType {
		return fmt.Errorf("register %q: %w", name, ErrInvalidTypeName)
	}

	d := desc
	d.TypeName = name
	d.MappableTypes = append([]TypeRef(nil), desc.MappableTypes...)

	t := r.tablesFor(scope, true)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[dir][name]; exists {
		return fmt.Errorf("%w: %s adapter %q in scope %s", ErrTypeAlreadyRegistered, dir, name, scope)
	}
	t.byName[dir][name] = &d

	r.logger.Debug("registered adapter", "scope", scope.String(), "direction", dir.String(), "name", name)
	return nil
}

// Unregister removes a named adapter from scope only. It reports whether an
// adapter was removed.
func (r *Registry) Unregister(scope *Scope, dir Direction, name string) bool {
	t := r.tablesFor(scope, false)
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byName[dir][name]; !ok {
		return false
	}
	delete(t.byName[dir], name)

	r.logger.Debug("unregistered adapter", "scope", scope.String(), "direction", dir.String(), "name", name)
	return true
}

// Lookup finds a named adapter in scope, falling back to Global. No type
// compatibility check is made.
func (r *Registry) Lookup(scope *Scope, dir Direction, name string) (*Descriptor, error) {
	if scope == nil {
		return nil, fmt.Errorf("lookup %s adapter %q: %w", dir, name, ErrNilScope)
	}
	if t := r.tablesFor(scope, false); t != nil {
		if d, ok := t.get(dir, name); ok {
			return d, nil
		}
	}
	if scope != Global {
		if t := r.tablesFor(Global, false); t != nil {
			if d, ok := t.get(dir, name); ok {
				return d, nil
			}
		}
	}
	return nil, &ResolutionError{Scope: scope.String(), Direction: dir, Name: name, Err: ErrNoMapping}
}

// Resolve finds a named adapter like Lookup and then requires javaType to
// be assignable to one of its mappable types.
func (r *Registry) Resolve(scope *Scope, dir Direction, name string, javaType TypeRef) (*Descriptor, error) {
	d, err := r.Lookup(scope, dir, name)
	if err != nil {
		return nil, err
	}
	if !d.Accepts(r.hierarchy, javaType) {
		return nil, &ResolutionError{
			Scope:     scope.String(),
			Direction: dir,
			Name:      name,
			Type:      javaType,
			Accepts:   d.MappableTypes,
			Err:       ErrIncompatibleType,
		}
	}
	return d, nil
}

// RegisterAuto adds a default adapter used by definitions without a
// mapping type. It is keyed by each of its mappable types; an already
// covered type fails with ErrTypeAlreadyRegistered and nothing is added.
func (r *Registry) RegisterAuto(dir Direction, desc Descriptor) error {
	if len(desc.MappableTypes) == 0 {
		return fmt.Errorf("register auto %s adapter: %w", dir, ErrNoMappableTypes)
	}
	d := desc
	d.TypeName = ""
	d.MappableTypes = append([]TypeRef(nil), desc.MappableTypes...)

	r.autoMu.Lock()
	defer r.autoMu.Unlock()
	for _, t := range d.MappableTypes {
		if _, exists := r.auto[dir][t]; exists {
			return fmt.Errorf("%w: auto %s adapter for %s", ErrTypeAlreadyRegistered, dir, t)
		}
	}
	for _, t := range d.MappableTypes {
		r.auto[dir][t] = &d
	}
	return nil
}

// ResolveAuto finds the default adapter for exactly javaType. Supertypes
// are not consulted.
func (r *Registry) ResolveAuto(dir Direction, javaType TypeRef) (*Descriptor, error) {
	r.autoMu.RLock()
	defer r.autoMu.RUnlock()
	if d, ok := r.auto[dir][javaType]; ok {
		return d, nil
	}
	return nil, &ResolutionError{Scope: Global.String(), Direction: dir, Name: directive.AutoType, Type: javaType, Err: ErrNoMapping}
}

// ResolveDefinition resolves the adapter for def applied to javaType.
// Auto definitions resolve by host type; named ones by name. Results bound
// to a constructor parameter skip the compatibility check.
func (r *Registry) ResolveDefinition(scope *Scope, def directive.Definition, javaType TypeRef) (*Descriptor, error) {
	dir := DirectionOf(def)
	b := directive.BaseOf(def)
	if b.IsAuto() {
		return r.ResolveAuto(dir, javaType)
	}
	if res, ok := def.(*directive.ResultDefinition); ok && res.ConstructorParameterIndex > 0 {
		return r.Lookup(scope, dir, b.MappingType)
	}
	return r.Resolve(scope, dir, b.MappingType, javaType)
}

// Names returns the adapter names registered directly in scope (sorted).
func (r *Registry) Names(scope *Scope, dir Direction) []string {
	t := r.tablesFor(scope, false)
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName[dir]))
	for name := range t.byName[dir] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TearDown drops every registration of scope. It is called when the
// consumer owning the scope goes away.
func (r *Registry) TearDown(scope *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scopes[scope]; ok {
		delete(r.scopes, scope)
		r.logger.Debug("scope torn down", "scope", scope.String())
	}
}
