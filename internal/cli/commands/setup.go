// Package commands implements the querymap subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/querymap/internal/cli/config"
	"github.com/leapstack-labs/querymap/internal/manifest"
	"github.com/leapstack-labs/querymap/internal/plan"
	"github.com/leapstack-labs/querymap/internal/state"
	"github.com/leapstack-labs/querymap/pkg/generation"
	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Out    io.Writer
	ErrOut io.Writer
}

// NewCommandContext creates a CommandContext from the loaded configuration
// and the logger stored in the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:    getConfig(),
		Logger: config.GetLogger(cmd.Context()),
		Out:    cmd.OutOrStdout(),
		ErrOut: cmd.ErrOrStderr(),
	}
}

// JSON reports whether machine-readable output was requested.
func (c *CommandContext) JSON() bool {
	return c.Cfg.OutputFormat == config.OutputJSON
}

// getConfig returns the current configuration, or defaults when commands
// run without the root command (as in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Manifest:     config.DefaultManifest,
		StatePath:    config.DefaultStateFile,
		Scope:        config.DefaultScope,
		OutputFormat: config.DefaultOutput,
		Workers:      config.DefaultWorkers,
	}
}

// openStore opens the generation history database.
func (c *CommandContext) openStore() (*state.SQLiteStore, error) {
	store, err := state.Open(c.Cfg.StatePath, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", c.Cfg.StatePath, err)
	}
	return store, nil
}

// project is a loaded manifest with its adapters registered.
type project struct {
	manifest *manifest.Manifest
	registry *mapping.Registry
}

// loadProject reads the manifest and registers the built-in and declared
// adapters in scope.
func (c *CommandContext) loadProject(scope *mapping.Scope) (*project, error) {
	m, err := manifest.Load(c.Cfg.Manifest)
	if err != nil {
		return nil, err
	}

	reg := mapping.NewRegistry(nil, c.Logger)
	if err := mapping.RegisterDefaults(reg); err != nil {
		return nil, err
	}
	m.DeclareTypes(reg.Hierarchy())
	if err := m.RegisterAdapters(reg, scope); err != nil {
		return nil, err
	}

	c.Logger.Debug("loaded manifest",
		slog.String("path", c.Cfg.Manifest),
		slog.Int("interfaces", len(m.Interfaces)),
		slog.Int("adapters", len(m.Adapters)))
	return &project{manifest: m, registry: reg}, nil
}

func (c *CommandContext) newPlanner(p *project, scope *mapping.Scope, coord *generation.Coordinator[*plan.Interface], rec plan.Recorder) *plan.Planner {
	return plan.NewPlanner(plan.Options{
		Manifest:    p.manifest,
		Registry:    p.registry,
		Scope:       scope,
		Coordinator: coord,
		Recorder:    rec,
		Logger:      c.Logger,
	})
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
