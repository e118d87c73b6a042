package mapping

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoMapping             = errors.New("no mapping found")
	ErrIncompatibleType      = errors.New("type not mappable by adapter")
	ErrTypeAlreadyRegistered = errors.New("type already registered")
	ErrInvalidTypeName       = errors.New("invalid adapter type name")
	ErrNoMappableTypes       = errors.New("adapter declares no mappable types")
	ErrNilScope              = errors.New("scope is nil")
)

// ResolutionError is returned when no adapter serves a definition.
// The registry is left unchanged.
type ResolutionError struct {
	Scope     string
	Direction Direction
	Name      string
	Type      TypeRef
	// Accepts lists the mappable types of a matched but incompatible adapter.
	Accepts []TypeRef
	Err     error
}

func (e *ResolutionError) Error() string {
	switch {
	case errors.Is(e.Err, ErrIncompatibleType):
		return fmt.Sprintf("%s adapter %q cannot map %s (accepts %v)", e.Direction, e.Name, e.Type, e.Accepts)
	case e.Type != "":
		return fmt.Sprintf("no mapping found for %s %s in scope %s", e.Name, e.Type, e.Scope)
	default:
		return fmt.Sprintf("no mapping found for %s in scope %s", e.Name, e.Scope)
	}
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
