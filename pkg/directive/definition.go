package directive

import (
	"fmt"
	"strings"
)

// AutoType is the mapping type of a directive that names no type.
// Auto definitions are resolved by host type instead of by name.
const AutoType = "auto"

// Kind identifies the variant of a Definition.
type Kind int

// Kind constants.
const (
	KindParameter Kind = iota
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindParameter:
		return "parameter"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Definition is the parsed form of one directive.
// It is implemented by *ParameterDefinition and *ResultDefinition only.
type Definition interface {
	Kind() Kind
	base() *Base
}

// Base holds the fields shared by every Definition.
type Base struct {
	// MappingType is the adapter type name, AutoType when none was given.
	MappingType string

	// Start and End are byte offsets of the directive in the annotation
	// text: Start points at '{', End just past '}'.
	Start int
	End   int

	// PartialPart is the 1-based part number of a partial definition,
	// 0 for a fully specified one.
	PartialPart int

	// PartialGroup disambiguates partial definitions sharing a type.
	// Empty means no group.
	PartialGroup string
}

func (b *Base) base() *Base { return b }

// IsPartial reports whether the definition is one part of a composite.
func (b *Base) IsPartial() bool { return b.PartialPart > 0 }

// IsAuto reports whether the definition is resolved by host type.
func (b *Base) IsAuto() bool { return b.MappingType == AutoType }

// ParameterDefinition binds a method argument (or one of its fields) to
// one or more bind positions of the statement.
type ParameterDefinition struct {
	Base

	// ParameterIndex is the 1-based method argument.
	ParameterIndex int
	// FieldPath is the chain of bean fields below the argument.
	FieldPath []string

	// Exactly one of SQLIndexes or SQLNames is set. Parse only produces
	// SQLIndexes; SQLNames is for callers that build definitions for
	// named-parameter statements themselves, and is merged by
	// CombineParameters like the indexes.
	SQLIndexes []int
	SQLNames   []string
}

// Kind implements Definition.
func (*ParameterDefinition) Kind() Kind { return KindParameter }

func (p *ParameterDefinition) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "param(%d", p.ParameterIndex)
	if len(p.FieldPath) > 0 {
		fmt.Fprintf(&sb, ".%s", strings.Join(p.FieldPath, "."))
	}
	fmt.Fprintf(&sb, " type=%s", p.MappingType)
	if len(p.SQLNames) > 0 {
		fmt.Fprintf(&sb, " names=%v", p.SQLNames)
	} else {
		fmt.Fprintf(&sb, " indexes=%v", p.SQLIndexes)
	}
	if p.PartialPart > 0 {
		fmt.Fprintf(&sb, " part=%d", p.PartialPart)
		if p.PartialGroup != "" {
			fmt.Fprintf(&sb, "[%s]", p.PartialGroup)
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// ResultDefinition binds one or more result columns to the returned value.
type ResultDefinition struct {
	Base

	// FieldPath is the chain of bean fields the value is stored in.
	// Empty means the value is the row result itself.
	FieldPath []string
	// IsMapKey marks the key side of a map-valued result.
	IsMapKey bool
	// ConstructorParameterIndex is the 1-based constructor argument the
	// value is passed to, 0 for none.
	ConstructorParameterIndex int

	// Exactly one of Columns or Indexes is set.
	Columns []string
	Indexes []int
}

// Kind implements Definition.
func (*ResultDefinition) Kind() Kind { return KindResult }

func (r *ResultDefinition) String() string {
	var sb strings.Builder
	sb.WriteString("result(")
	switch {
	case r.IsMapKey:
		sb.WriteString("key")
	case r.ConstructorParameterIndex > 0:
		fmt.Fprintf(&sb, "ctor %d", r.ConstructorParameterIndex)
	case len(r.FieldPath) > 0:
		fmt.Fprintf(&sb, ".%s", strings.Join(r.FieldPath, "."))
	default:
		sb.WriteString("value")
	}
	fmt.Fprintf(&sb, " type=%s", r.MappingType)
	if len(r.Indexes) > 0 {
		fmt.Fprintf(&sb, " indexes=%v", r.Indexes)
	} else {
		fmt.Fprintf(&sb, " columns=%v", r.Columns)
	}
	if r.PartialPart > 0 {
		fmt.Fprintf(&sb, " part=%d", r.PartialPart)
		if r.PartialGroup != "" {
			fmt.Fprintf(&sb, "[%s]", r.PartialGroup)
		}
	}
	sb.WriteString(")")
	return sb.String()
}

// Statement is the result of parsing one annotated SQL string.
type Statement struct {
	// SQL is the cleaned statement with directives replaced by '?'.
	SQL        string
	Parameters []*ParameterDefinition
	Results    []*ResultDefinition
}

// BaseOf returns the shared fields of a definition.
func BaseOf(d Definition) *Base {
	return d.base()
}
