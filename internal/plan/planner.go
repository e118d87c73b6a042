package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/querymap/internal/manifest"
	"github.com/leapstack-labs/querymap/pkg/generation"
	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// Recorder receives the outcome of every build the planner runs. Cache hits
// are not recorded.
type Recorder interface {
	RecordBuild(ctx context.Context, scope string, key generation.Key, methods int, buildErr error) error
}

// Planner builds interface plans at most once per scope and key.
type Planner struct {
	builder  *Builder
	manifest *manifest.Manifest
	scope    *mapping.Scope
	coord    *generation.Coordinator[*Interface]
	recorder Recorder
	logger   *slog.Logger
}

// Options configures a Planner.
type Options struct {
	Manifest *manifest.Manifest
	Registry *mapping.Registry
	Scope    *mapping.Scope
	// Coordinator may be shared between planners; a private one is created
	// when nil.
	Coordinator *generation.Coordinator[*Interface]
	Recorder    Recorder
	Logger      *slog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(opts Options) *Planner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	coord := opts.Coordinator
	if coord == nil {
		coord = generation.NewCoordinator[*Interface](logger)
	}
	return &Planner{
		builder:  NewBuilder(opts.Manifest, opts.Registry, opts.Scope, logger),
		manifest: opts.Manifest,
		scope:    opts.Scope,
		coord:    coord,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Plan returns the plan of the named interface, building it if needed.
func (p *Planner) Plan(ctx context.Context, name string) (*Interface, error) {
	iface, ok := p.manifest.Interface(name)
	if !ok {
		return nil, fmt.Errorf("interface %q is not declared", name)
	}
	key := generation.Key{Interface: iface.Name, Base: iface.Base}

	built := false
	plan, err := p.coord.GetOrBuild(p.scope, key, func() (*Interface, error) {
		built = true
		plan, err := p.builder.BuildInterface(iface)
		methods := 0
		if plan != nil {
			methods = len(plan.Methods)
		}
		p.record(ctx, key, methods, err)
		return plan, err
	})
	if err != nil {
		return nil, err
	}
	if !built {
		p.logger.Debug("plan cache hit", "interface", name)
	}
	return plan, nil
}

// Result is the outcome of planning one interface in PlanAll.
type Result struct {
	Interface string
	Plan      *Interface
	Err       error
}

// PlanAll plans every declared interface using at most workers goroutines
// (unlimited when workers <= 0). Per-interface failures are reported in the
// results, sorted by interface name; the returned error is only set when
// ctx is cancelled.
func (p *Planner) PlanAll(ctx context.Context, workers int) ([]Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	var mu sync.Mutex
	results := make([]Result, 0, len(p.manifest.Interfaces))
	for _, iface := range p.manifest.Interfaces {
		name := iface.Name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plan, err := p.Plan(gctx, name)
			mu.Lock()
			results = append(results, Result{Interface: name, Plan: plan, Err: err})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Interface < results[j].Interface })
	return results, nil
}

// Invalidate drops every cached plan so the next Plan rebuilds it.
func (p *Planner) Invalidate() int {
	n := 0
	for _, iface := range p.manifest.Interfaces {
		if p.coord.Evict(p.scope, generation.Key{Interface: iface.Name, Base: iface.Base}) {
			n++
		}
	}
	return n
}

// Close tears down the planner's scope in the coordinator.
func (p *Planner) Close() {
	p.coord.TearDown(p.scope)
}

func (p *Planner) record(ctx context.Context, key generation.Key, methods int, buildErr error) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordBuild(ctx, p.scope.Name(), key, methods, buildErr); err != nil {
		p.logger.Warn("failed to record build", "key", key.String(), "error", err)
	}
}
