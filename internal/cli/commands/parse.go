package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querymap/pkg/directive"
)

// ParseOptions holds options for the parse command.
type ParseOptions struct {
	Callable bool
	Raw      bool
}

// NewParseCommand creates the parse command.
func NewParseCommand() *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [sql]",
		Short: "Parse an annotated SQL statement",
		Long: `Strip the mapping directives from an annotated SQL statement and show
the cleaned SQL together with the parameter and result definitions.

The statement is read from standard input when no argument (or "-") is given.`,
		Example: `  # Parse a query with one parameter and two results
  querymap parse "select id {%%.id}, name {%%.name} from t where id = {%1}"

  # Parse a stored procedure call
  querymap parse --callable "{call next_id({%1}, {%%})}"

  # Show partial definitions before they are combined
  querymap parse --raw < query.sql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readStatement(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runParse(NewCommandContext(cmd), sql, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Callable, "callable", false, "Treat the statement as a stored procedure call")
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "Do not combine partial definitions")

	return cmd
}

func readStatement(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read statement: %w", err)
	}
	return string(data), nil
}

// definitionView is the printable form of one definition.
type definitionView struct {
	Kind   string   `json:"kind"`
	Type   string   `json:"type"`
	Target string   `json:"target"`
	Binds  []string `json:"binds"`
	Part   string   `json:"part,omitempty"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
}

type parseView struct {
	SQL         string           `json:"sql"`
	Definitions []definitionView `json:"definitions"`
}

func runParse(c *CommandContext, sql string, opts *ParseOptions) error {
	compile := directive.Compile
	if opts.Raw {
		compile = directive.Parse
	}

	stmt, err := compile(sql, opts.Callable)
	if err != nil {
		var syn *directive.SyntaxError
		if errors.As(err, &syn) && !c.JSON() {
			printErrorMarker(c.ErrOut, sql, syn.Offset, syn.Length)
		}
		return err
	}

	view := parseView{SQL: stmt.SQL, Definitions: []definitionView{}}
	for _, p := range stmt.Parameters {
		view.Definitions = append(view.Definitions, describeParameter(p))
	}
	for _, r := range stmt.Results {
		view.Definitions = append(view.Definitions, describeResult(r))
	}

	if c.JSON() {
		return writeJSON(c.Out, view)
	}

	_, _ = fmt.Fprintln(c.Out, view.SQL)
	if len(view.Definitions) == 0 {
		_, _ = fmt.Fprintln(c.Out, "(no definitions)")
		return nil
	}
	t := newTable(c.Out)
	t.AppendHeader(table.Row{"Kind", "Type", "Target", "Binds", "Part", "Span"})
	for _, d := range view.Definitions {
		t.AppendRow(table.Row{d.Kind, d.Type, d.Target, strings.Join(d.Binds, ", "), d.Part, fmt.Sprintf("%d-%d", d.Start, d.End)})
	}
	t.Render()
	return nil
}

// printErrorMarker prints the statement with a caret line under the span.
func printErrorMarker(w io.Writer, sql string, offset, length int) {
	line := strings.ReplaceAll(sql, "\n", " ")
	if length < 1 {
		length = 1
	}
	_, _ = fmt.Fprintln(w, line)
	_, _ = fmt.Fprintln(w, strings.Repeat(" ", offset)+strings.Repeat("^", length))
}

func describeParameter(p *directive.ParameterDefinition) definitionView {
	target := fmt.Sprintf("%%%d", p.ParameterIndex)
	if len(p.FieldPath) > 0 {
		target += "." + strings.Join(p.FieldPath, ".")
	}
	binds := make([]string, 0, len(p.SQLIndexes)+len(p.SQLNames))
	for _, i := range p.SQLIndexes {
		binds = append(binds, fmt.Sprintf("?%d", i))
	}
	for _, n := range p.SQLNames {
		binds = append(binds, ":"+n)
	}
	return definitionView{
		Kind:   p.Kind().String(),
		Type:   p.MappingType,
		Target: target,
		Binds:  binds,
		Part:   partLabel(&p.Base),
		Start:  p.Start,
		End:    p.End,
	}
}

func describeResult(r *directive.ResultDefinition) definitionView {
	var target string
	switch {
	case r.IsMapKey:
		target = "key"
	case r.ConstructorParameterIndex > 0:
		target = fmt.Sprintf("constructor %d", r.ConstructorParameterIndex)
	case len(r.FieldPath) > 0:
		target = "." + strings.Join(r.FieldPath, ".")
	default:
		target = "value"
	}
	binds := make([]string, 0, len(r.Columns)+len(r.Indexes))
	binds = append(binds, r.Columns...)
	for _, i := range r.Indexes {
		binds = append(binds, fmt.Sprintf("#%d", i))
	}
	return definitionView{
		Kind:   r.Kind().String(),
		Type:   r.MappingType,
		Target: target,
		Binds:  binds,
		Part:   partLabel(&r.Base),
		Start:  r.Start,
		End:    r.End,
	}
}

func partLabel(b *directive.Base) string {
	if !b.IsPartial() {
		return ""
	}
	if b.PartialGroup != "" {
		return fmt.Sprintf("%d[%s]", b.PartialPart, b.PartialGroup)
	}
	return fmt.Sprintf("%d", b.PartialPart)
}
