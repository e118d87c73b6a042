package mapping

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// TypeRef names a host type, e.g. "java.lang.Long" or "int".
type TypeRef string

// ObjectType is the root every reference type is assignable to.
const ObjectType TypeRef = "java.lang.Object"

var primitives = map[TypeRef]bool{
	"boolean": true, "byte": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true,
}

// IsPrimitive reports whether t is a primitive (non-reference) type.
func (t TypeRef) IsPrimitive() bool { return primitives[t] }

//go:embed builtin_types.yaml
var builtinTypes []byte

// Hierarchy is a declared table of subtype relationships. Assignability is
// answered from this table only; nothing is discovered at runtime.
type Hierarchy struct {
	mu     sync.RWMutex
	supers map[TypeRef][]TypeRef
}

// NewHierarchy returns an empty hierarchy.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{supers: make(map[TypeRef][]TypeRef)}
}

// BuiltinHierarchy returns a hierarchy preloaded with the common java.lang,
// java.math, java.sql, java.time and java.util types.
func BuiltinHierarchy() *Hierarchy {
	h := NewHierarchy()
	if err := h.decode(builtinTypes); err != nil {
		panic(fmt.Sprintf("mapping: invalid builtin type table: %v", err))
	}
	return h
}

// Declare records that t directly extends or implements supertypes.
// Repeated declarations accumulate.
func (h *Hierarchy) Declare(t TypeRef, supertypes ...TypeRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing := h.supers[t]
	for _, s := range supertypes {
		if s == t || containsType(existing, s) {
			continue
		}
		existing = append(existing, s)
	}
	h.supers[t] = existing
}

// Load reads a YAML document mapping type names to their direct
// supertypes and declares each entry.
func (h *Hierarchy) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read type table: %w", err)
	}
	return h.decode(data)
}

func (h *Hierarchy) decode(data []byte) error {
	var table map[string][]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("failed to parse type table: %w", err)
	}
	for t, supers := range table {
		refs := make([]TypeRef, len(supers))
		for i, s := range supers {
			refs[i] = TypeRef(s)
		}
		h.Declare(TypeRef(t), refs...)
	}
	return nil
}

// Supertypes returns the direct supertypes declared for t.
func (h *Hierarchy) Supertypes(t TypeRef) []TypeRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]TypeRef(nil), h.supers[t]...)
}

// Types returns every type with declared supertypes (sorted).
func (h *Hierarchy) Types() []TypeRef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]TypeRef, 0, len(h.supers))
	for t := range h.supers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AssignableTo reports whether a value of type t can be used where target
// is expected. The relation is reflexive and transitive; every reference
// type is assignable to ObjectType, primitives only to themselves or their
// declared supertypes.
func (h *Hierarchy) AssignableTo(t, target TypeRef) bool {
	if t == target {
		return true
	}
	if target == ObjectType && !t.IsPrimitive() {
		return true
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := map[TypeRef]bool{t: true}
	queue := []TypeRef{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range h.supers[cur] {
			if s == target {
				return true
			}
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return false
}

func containsType(list []TypeRef, t TypeRef) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}
