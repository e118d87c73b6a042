package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querymap/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded plan generations",
		Long:  `List the most recent plan generations recorded by check, newest first.`,
		Example: `  # Last 20 generations
  querymap history

  # Last 100 generations as JSON
  querymap history --limit 100 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), NewCommandContext(cmd), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of generations to show")

	return cmd
}

type generationView struct {
	ID          string     `json:"id"`
	Scope       string     `json:"scope"`
	Interface   string     `json:"interface"`
	Base        string     `json:"base,omitempty"`
	Status      string     `json:"status"`
	Methods     int        `json:"methods"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func runHistory(ctx context.Context, c *CommandContext, opts *HistoryOptions) error {
	if opts.Limit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", opts.Limit)
	}

	store, err := c.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gens, err := store.ListGenerations(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if c.JSON() {
		views := make([]generationView, len(gens))
		for i, g := range gens {
			views[i] = generationView{
				ID:          g.ID,
				Scope:       g.Scope,
				Interface:   g.Key.Interface,
				Base:        g.Key.Base,
				Status:      string(g.Status),
				Methods:     g.Methods,
				Error:       g.Error,
				StartedAt:   g.StartedAt,
				CompletedAt: g.CompletedAt,
			}
		}
		return writeJSON(c.Out, views)
	}

	if len(gens) == 0 {
		_, _ = fmt.Fprintln(c.Out, "No generations recorded yet. Run 'querymap check' first.")
		return nil
	}

	t := newTable(c.Out)
	t.AppendHeader(table.Row{"ID", "Started", "Scope", "Interface", "Status", "Methods", "Duration", "Error"})
	for _, g := range gens {
		t.AppendRow(table.Row{
			shortID(g.ID),
			g.StartedAt.Local().Format(time.DateTime),
			g.Scope,
			g.Key.String(),
			g.Status,
			g.Methods,
			formatDuration(g),
			g.Error,
		})
	}
	t.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(g *state.Generation) string {
	if g.CompletedAt == nil {
		return "-"
	}
	return g.Duration().Round(time.Microsecond).String()
}
