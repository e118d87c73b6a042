package directive

import (
	"errors"
	"fmt"
)

// Sentinel errors. SyntaxError and ValidationError values match them with
// errors.Is.
var (
	ErrSyntax           = errors.New("syntax error")
	ErrDuplicatePartial = errors.New("duplicate partial definition")
	ErrPartialGap       = errors.New("incomplete partial definition")
	ErrMapKey           = errors.New("invalid map key directive")
	ErrInOut            = errors.New("invalid in/out directive")
	ErrColumnName       = errors.New("cannot infer column name")
)

// SyntaxError reports a malformed directive or unbalanced brackets.
// Offset and Length locate the offending text in the annotation.
type SyntaxError struct {
	Msg    string
	Offset int
	Length int
	// Text is the offending substring.
	Text string
}

func newSyntaxError(src string, offset, length int, format string, args ...any) *SyntaxError {
	if offset < 0 {
		offset = 0
	}
	if offset+length > len(src) {
		length = len(src) - offset
	}
	return &SyntaxError{
		Msg:    fmt.Sprintf(format, args...),
		Offset: offset,
		Length: length,
		Text:   src[offset : offset+length],
	}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s: %q", e.Offset, e.Length, e.Msg, e.Text)
}

// Is reports ErrSyntax as the error class.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// ValidationError reports a structurally parsed directive set that is
// inconsistent, such as duplicate partial parts or a missing map key.
type ValidationError struct {
	Msg    string
	Offset int
	Length int
	Err    error
}

func newValidationError(err error, b *Base, format string, args ...any) *ValidationError {
	v := &ValidationError{Msg: fmt.Sprintf(format, args...), Err: err}
	if b != nil {
		v.Offset = b.Start
		v.Length = b.End - b.Start
	}
	return v
}

func (e *ValidationError) Error() string {
	if e.Length > 0 {
		return fmt.Sprintf("%d:%d: %v: %s", e.Offset, e.Length, e.Err, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
