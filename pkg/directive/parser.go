package directive

import (
	"errors"
	"strings"
)

// Parse scans an annotated SQL string, replaces its directives with bind
// placeholders and returns the cleaned SQL together with the raw (not yet
// combined) definitions.
//
// The cleaned SQL is the input split on whitespace and re-joined with single
// spaces; quoted literals are copied unchanged. A directive starts a new
// token, and text directly after it stays attached to what the directive
// left behind. For callable statements every directive becomes a '?';
// otherwise result directives are removed and take their column name from
// the text in front of them.
func Parse(sql string, callable bool) (*Statement, error) {
	p := &parser{src: sql, callable: callable}
	if err := p.checkBrackets(); err != nil {
		return nil, err
	}
	if err := p.scan(); err != nil {
		return nil, err
	}
	return &Statement{
		SQL:        strings.Join(p.tokens, " "),
		Parameters: p.params,
		Results:    p.results,
	}, nil
}

// Compile parses sql and combines partial definitions of both directions.
func Compile(sql string, callable bool) (*Statement, error) {
	stmt, err := Parse(sql, callable)
	if err != nil {
		return nil, err
	}
	if stmt.Parameters, err = CombineParameters(stmt.Parameters); err != nil {
		return nil, err
	}
	if stmt.Results, err = CombineResults(stmt.Results); err != nil {
		return nil, err
	}
	return stmt, nil
}

type parser struct {
	src      string
	callable bool

	tokens  []string
	cur     strings.Builder
	ordinal int
	// glue appends the next token to the last one instead of starting a new
	// one. Set after a directive, cleared by whitespace.
	glue bool

	params  []*ParameterDefinition
	results []*ResultDefinition
}

// checkBrackets verifies that every '{' outside a quoted literal has a
// matching '}'.
func (p *parser) checkBrackets() error {
	var open []int
	for i := 0; i < len(p.src); {
		switch c := p.src[i]; c {
		case '\'', '"':
			i = skipQuoted(p.src, i)
			continue
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				return newSyntaxError(p.src, i, 1, "unbalanced brackets: unexpected '}'")
			}
			open = open[:len(open)-1]
		}
		i++
	}
	if len(open) > 0 {
		at := open[len(open)-1]
		return newSyntaxError(p.src, at, len(p.src)-at, "unbalanced brackets: unclosed '{'")
	}
	return nil
}

func (p *parser) scan() error {
	src := p.src
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\'' || c == '"':
			j := skipQuoted(src, i)
			p.cur.WriteString(src[i:j])
			i = j
		case isSpace(c):
			p.flush()
			p.glue = false
			i++
		case c == '{':
			end, body, ok := directiveAt(src, i)
			if !ok {
				p.cur.WriteByte(c)
				i++
				continue
			}
			p.flush()
			p.glue = false
			if err := p.directive(i, end, body); err != nil {
				return err
			}
			p.glue = true
			i = end
		default:
			if c == '?' {
				p.ordinal++
			}
			p.cur.WriteByte(c)
			i++
		}
	}
	p.flush()
	return nil
}

func (p *parser) flush() {
	if p.cur.Len() == 0 {
		return
	}
	if p.glue && len(p.tokens) > 0 {
		p.tokens[len(p.tokens)-1] += p.cur.String()
	} else {
		p.tokens = append(p.tokens, p.cur.String())
	}
	p.cur.Reset()
	p.glue = false
}

// bind emits a placeholder and returns its ordinal.
func (p *parser) bind() int {
	p.tokens = append(p.tokens, "?")
	p.ordinal++
	return p.ordinal
}

// directive handles the text src[start:end] whose whitespace-free content
// between the braces is body.
func (p *parser) directive(start, end int, body string) error {
	sides := strings.Split(body, ",")
	if len(sides) > 2 {
		return newSyntaxError(p.src, start, end-start, "directive holds more than two sub-directives")
	}

	defs := make([]Definition, 0, len(sides))
	for _, side := range sides {
		d, err := Match(side)
		if err != nil {
			var me *matchError
			if errors.As(err, &me) {
				return newSyntaxError(p.src, start, end-start, "invalid directive %q: %s", side, me.msg)
			}
			return err
		}
		b := d.base()
		b.Start, b.End = start, end
		defs = append(defs, d)
	}

	if len(defs) == 1 {
		return p.single(defs[0])
	}
	if p.callable {
		return p.inOut(defs[0], defs[1])
	}
	return p.mapPair(defs[0], defs[1])
}

func (p *parser) single(d Definition) error {
	switch d := d.(type) {
	case *ParameterDefinition:
		d.SQLIndexes = []int{p.bind()}
		p.params = append(p.params, d)
	case *ResultDefinition:
		if p.callable {
			d.Indexes = []int{p.bind()}
		} else {
			col, err := p.column(&d.Base)
			if err != nil {
				return err
			}
			d.Columns = []string{col}
		}
		p.results = append(p.results, d)
	}
	return nil
}

// inOut handles "{param,result}" in a callable statement: both sides share
// one placeholder, the parameter side is recorded first.
func (p *parser) inOut(a, b Definition) error {
	param, pok := a.(*ParameterDefinition)
	result, rok := b.(*ResultDefinition)
	if !pok || !rok {
		param, pok = b.(*ParameterDefinition)
		result, rok = a.(*ResultDefinition)
	}
	if !pok || !rok {
		return newValidationError(ErrInOut, a.base(), "an in/out directive needs one parameter and one result side")
	}
	idx := p.bind()
	param.SQLIndexes = []int{idx}
	result.Indexes = []int{idx}
	p.params = append(p.params, param)
	p.results = append(p.results, result)
	return nil
}

// mapPair handles "{value,key}" result pairs over one column. The value side
// is recorded first, the key side second.
func (p *parser) mapPair(a, b Definition) error {
	ra, aok := a.(*ResultDefinition)
	rb, bok := b.(*ResultDefinition)
	if !aok || !bok {
		return newValidationError(ErrMapKey, a.base(), "only result directives can be paired outside a callable statement")
	}
	if ra.IsMapKey == rb.IsMapKey {
		if ra.IsMapKey {
			return newValidationError(ErrMapKey, a.base(), "both sides are marked as map key")
		}
		return newValidationError(ErrMapKey, a.base(), "neither side is marked as map key")
	}
	if ra.IsMapKey {
		ra, rb = rb, ra
	}
	col, err := p.column(a.base())
	if err != nil {
		return err
	}
	ra.Columns = []string{col}
	rb.Columns = []string{col}
	p.results = append(p.results, ra, rb)
	return nil
}

// column infers the result column name from the preceding token: the
// trailing quoted identifier, or else the longest trailing run of
// identifier characters.
func (p *parser) column(b *Base) (string, error) {
	if len(p.tokens) == 0 {
		return "", newValidationError(ErrColumnName, b, "no column precedes the result directive")
	}
	tok := p.tokens[len(p.tokens)-1]

	if n := len(tok); n >= 2 && (tok[n-1] == '"' || tok[n-1] == '`') {
		if open := strings.LastIndexByte(tok[:n-1], tok[n-1]); open >= 0 && open < n-2 {
			return tok[open+1 : n-1], nil
		}
	}

	i := len(tok)
	for i > 0 && isIdentChar(tok[i-1]) {
		i--
	}
	if i == len(tok) {
		return "", newValidationError(ErrColumnName, b, "%q does not end with a column name", tok)
	}
	return tok[i:], nil
}

// directiveAt reports whether the brace at src[start] opens a directive:
// one holding a '%' outside quoted literals and no nested brace. Other
// braces (JDBC escapes such as {call ...} or {fn ...}) are left as SQL text.
// body is the content between the braces with whitespace removed.
func directiveAt(src string, start int) (end int, body string, ok bool) {
	var sb strings.Builder
	marked := false
	for j := start + 1; j < len(src); {
		switch c := src[j]; {
		case c == '}':
			if !marked {
				return 0, "", false
			}
			return j + 1, sb.String(), true
		case c == '{':
			return 0, "", false
		case c == '\'' || c == '"':
			k := skipQuoted(src, j)
			sb.WriteString(src[j:k])
			j = k
			continue
		case c == '%':
			marked = true
			sb.WriteByte(c)
		case !isSpace(c):
			sb.WriteByte(c)
		}
		j++
	}
	return 0, "", false
}

// skipQuoted returns the index just past the literal starting at src[i].
// A doubled quote character is an escaped quote. An unterminated literal
// runs to the end of input.
func skipQuoted(src string, i int) int {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		if src[j] != q {
			continue
		}
		if j+1 < len(src) && src[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(src)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
