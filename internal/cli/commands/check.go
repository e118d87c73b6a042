package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querymap/internal/plan"
	"github.com/leapstack-labs/querymap/internal/state"
	"github.com/leapstack-labs/querymap/pkg/generation"
	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// watchDebounce groups the burst of events editors emit for one save.
const watchDebounce = 100 * time.Millisecond

// CheckOptions holds options for the check command.
type CheckOptions struct {
	Watch     bool
	NoHistory bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Plan every interface declared in the manifest",
		Long: `Compile the SQL of every declared method, resolve an adapter for every
parameter and result, and report which interfaces plan cleanly.

Interfaces are planned concurrently (see --workers). Each build is recorded
in the state database unless --no-history is given.`,
		Example: `  # Check the manifest found via querymap.yaml
  querymap check

  # Check a specific manifest and re-check whenever it changes
  querymap check --manifest api/queries.yaml --watch

  # Machine-readable report
  querymap check -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), NewCommandContext(cmd), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-check when the manifest changes")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record builds in the state database")

	return cmd
}

// checker plans a manifest and survives reloads of it in watch mode.
type checker struct {
	mu       sync.Mutex
	cmd      *CommandContext
	scope    *mapping.Scope
	coord    *generation.Coordinator[*plan.Interface]
	recorder plan.Recorder
	planner  *plan.Planner
}

func runCheck(ctx context.Context, c *CommandContext, opts *CheckOptions) error {
	scope := mapping.NewScope(c.Cfg.Scope)
	ch := &checker{
		cmd:   c,
		scope: scope,
		coord: generation.NewCoordinator[*plan.Interface](c.Logger),
	}

	if !opts.NoHistory {
		store, err := c.openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		ch.recorder = store
	}
	defer ch.coord.TearDown(scope)

	failed, err := ch.run(ctx)
	if !opts.Watch {
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d interface(s) failed to plan", failed)
		}
		return nil
	}
	if err != nil {
		c.Logger.Error("check failed", slog.String("error", err.Error()))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	_, _ = fmt.Fprintf(c.ErrOut, "Watching %s for changes (Ctrl+C to stop)\n", c.Cfg.Manifest)
	err = watchFile(ctx, c.Cfg.Manifest, c.Logger, func() {
		if _, err := ch.run(ctx); err != nil && ctx.Err() == nil {
			c.Logger.Error("check failed", slog.String("error", err.Error()))
		}
	})

	// cancel first so that later re-checks return early, then wait for one
	// still in flight
	stop()
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return err
}

// run (re)loads the manifest, evicts plans of the previous load and plans
// every interface. It returns the number of failed interfaces.
func (ch *checker) run(ctx context.Context) (int, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if ch.planner != nil {
		evicted := ch.planner.Invalidate()
		ch.cmd.Logger.Debug("evicted plans", slog.Int("count", evicted))
	}

	p, err := ch.cmd.loadProject(ch.scope)
	if err != nil {
		return 0, err
	}
	ch.planner = ch.cmd.newPlanner(p, ch.scope, ch.coord, ch.recorder)

	results, err := ch.planner.PlanAll(ctx, ch.cmd.Cfg.Workers)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	return failed, renderCheck(ch.cmd, results)
}

type checkView struct {
	Interface string `json:"interface"`
	Methods   int    `json:"methods"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func renderCheck(c *CommandContext, results []plan.Result) error {
	views := make([]checkView, len(results))
	failed := 0
	for i, r := range results {
		v := checkView{Interface: r.Interface, Status: string(state.StatusSucceeded)}
		if r.Plan != nil {
			v.Methods = len(r.Plan.Methods)
		}
		if r.Err != nil {
			v.Status = string(state.StatusFailed)
			v.Error = r.Err.Error()
			failed++
		}
		views[i] = v
	}

	if c.JSON() {
		return writeJSON(c.Out, views)
	}

	t := newTable(c.Out)
	t.AppendHeader(table.Row{"Interface", "Methods", "Status", "Error"})
	for _, v := range views {
		t.AppendRow(table.Row{v.Interface, v.Methods, v.Status, v.Error})
	}
	t.Render()
	_, _ = fmt.Fprintf(c.Out, "%d interface(s), %d failed\n", len(views), failed)
	return nil
}

// watchFile calls onChange, debounced, whenever path is written or
// re-created. The parent directory is watched so that editors replacing the
// file are noticed. It returns when ctx is done.
func watchFile(ctx context.Context, path string, logger *slog.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("manifest changed", slog.String("op", event.Op.String()))
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
