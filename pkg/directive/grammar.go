package directive

import (
	"fmt"
	"strconv"
)

// matchError is a grammar failure at an offset inside one sub-directive.
type matchError struct {
	pos int
	msg string
}

func (e *matchError) Error() string {
	return fmt.Sprintf("at %d: %s", e.pos, e.msg)
}

// Match parses one sub-directive (the text between the braces, or one side
// of a comma pair, with whitespace removed) into a Definition.
// The whole input must match; trailing text is an error. Offsets of the
// returned definition are left zero for the caller to fill in.
func Match(raw string) (Definition, error) {
	m := &matcher{src: raw}
	d, err := m.directive()
	if err != nil {
		return nil, err
	}
	return d, nil
}

type matcher struct {
	src string
	pos int
}

func (m *matcher) errorf(format string, args ...any) error {
	return &matchError{pos: m.pos, msg: fmt.Sprintf(format, args...)}
}

func (m *matcher) eof() bool { return m.pos >= len(m.src) }

func (m *matcher) peek() byte {
	if m.eof() {
		return 0
	}
	return m.src[m.pos]
}

func (m *matcher) accept(c byte) bool {
	if m.peek() == c && !m.eof() {
		m.pos++
		return true
	}
	return false
}

func (m *matcher) takeWhile(pred func(byte) bool) string {
	start := m.pos
	for !m.eof() && pred(m.src[m.pos]) {
		m.pos++
	}
	return m.src[start:m.pos]
}

// directive := [typeName] "%" (param | "%" result) [partialSuffix]
func (m *matcher) directive() (Definition, error) {
	typeName := m.takeWhile(isTypeNameChar)
	if typeName == "" {
		typeName = AutoType
	}
	if !m.accept('%') {
		if m.eof() {
			return nil, m.errorf("expected '%%'")
		}
		return nil, m.errorf("unexpected %q in type name", m.peek())
	}

	var d Definition
	var err error
	if m.accept('%') {
		d, err = m.result(typeName)
	} else {
		d, err = m.parameter(typeName)
	}
	if err != nil {
		return nil, err
	}

	if m.accept('@') {
		b := d.base()
		if b.PartialPart, err = m.ordinal("partial part"); err != nil {
			return nil, err
		}
		if m.accept('[') {
			b.PartialGroup = m.takeWhile(isTypeNameChar)
			if b.PartialGroup == "" {
				return nil, m.errorf("expected partial group name")
			}
			if !m.accept(']') {
				return nil, m.errorf("expected ']' after partial group")
			}
		}
	}

	if !m.eof() {
		return nil, m.errorf("unexpected %q", m.src[m.pos:])
	}
	return d, nil
}

// param := digits ["." fieldPath]
func (m *matcher) parameter(typeName string) (*ParameterDefinition, error) {
	idx, err := m.ordinal("argument ordinal")
	if err != nil {
		return nil, err
	}
	p := &ParameterDefinition{
		Base:           Base{MappingType: typeName},
		ParameterIndex: idx,
	}
	if m.accept('.') {
		if p.FieldPath, err = m.fieldPath(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// result := (digits | "*" | "." fieldPath)?
func (m *matcher) result(typeName string) (*ResultDefinition, error) {
	r := &ResultDefinition{Base: Base{MappingType: typeName}}
	var err error
	switch c := m.peek(); {
	case m.eof():
	case isDigit(c):
		if r.ConstructorParameterIndex, err = m.ordinal("constructor ordinal"); err != nil {
			return nil, err
		}
	case c == '*':
		m.pos++
		r.IsMapKey = true
	case c == '.':
		m.pos++
		if r.FieldPath, err = m.fieldPath(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ordinal reads a positive decimal integer.
func (m *matcher) ordinal(what string) (int, error) {
	start := m.pos
	digits := m.takeWhile(isDigit)
	if digits == "" {
		return 0, m.errorf("expected %s", what)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n == 0 {
		m.pos = start
		return 0, m.errorf("invalid %s %q", what, digits)
	}
	return n, nil
}

// fieldPath := ident ("." ident)*
func (m *matcher) fieldPath() ([]string, error) {
	var path []string
	for {
		if !isIdentStart(m.peek()) || m.eof() {
			return nil, m.errorf("expected field name")
		}
		path = append(path, m.takeWhile(isIdentChar))
		if m.peek() != '.' || m.eof() {
			return path, nil
		}
		m.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isTypeNameChar(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c == '-'
}

func isIdentStart(c byte) bool { return isLetter(c) || c == '_' || c == '$' }

func isIdentChar(c byte) bool { return isIdentStart(c) || isDigit(c) }
