package plan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querymap/internal/manifest"
	"github.com/leapstack-labs/querymap/internal/testutil"
	"github.com/leapstack-labs/querymap/pkg/generation"
	"github.com/leapstack-labs/querymap/pkg/mapping"
)

type build struct {
	scope   string
	key     generation.Key
	methods int
	err     error
}

type fakeRecorder struct {
	mu     sync.Mutex
	builds []build
	fail   error
}

func (r *fakeRecorder) RecordBuild(_ context.Context, scope string, key generation.Key, methods int, buildErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, build{scope: scope, key: key, methods: methods, err: buildErr})
	return r.fail
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.builds)
}

func newPlanner(t *testing.T, m *manifest.Manifest, rec Recorder) *Planner {
	t.Helper()
	scope := mapping.NewScope("orders")
	p := NewPlanner(Options{
		Manifest: m,
		Registry: newRegistry(t, m, scope),
		Scope:    scope,
		Recorder: rec,
		Logger:   testutil.NewTestLogger(t),
	})
	t.Cleanup(p.Close)
	return p
}

func TestPlanner_PlanIsCached(t *testing.T) {
	rec := &fakeRecorder{}
	p := newPlanner(t, loadOrders(t), rec)
	ctx := context.Background()

	first, err := p.Plan(ctx, "com.acme.OrderQueries")
	require.NoError(t, err)
	second, err := p.Plan(ctx, "com.acme.OrderQueries")
	require.NoError(t, err)

	assert.Same(t, first, second)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "orders", rec.builds[0].scope)
	assert.Equal(t, 3, rec.builds[0].methods)
	assert.NoError(t, rec.builds[0].err)
}

func TestPlanner_UnknownInterface(t *testing.T) {
	p := newPlanner(t, loadOrders(t), nil)
	_, err := p.Plan(context.Background(), "com.acme.Nope")
	assert.ErrorContains(t, err, "not declared")
}

func TestPlanner_Invalidate(t *testing.T) {
	rec := &fakeRecorder{}
	p := newPlanner(t, loadOrders(t), rec)
	ctx := context.Background()

	_, err := p.Plan(ctx, "com.acme.Procedures")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Invalidate())

	_, err = p.Plan(ctx, "com.acme.Procedures")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count())
}

func TestPlanner_PlanAll(t *testing.T) {
	m := loadOrders(t)
	broken, err := manifest.Parse(strings.NewReader(`
interfaces:
  - name: com.acme.Broken
    methods:
      - name: bad
        parameters: [java.lang.Long]
        sql: delete from t where id = {nope%1}
`))
	require.NoError(t, err)
	m.Interfaces = append(m.Interfaces, broken.Interfaces...)

	rec := &fakeRecorder{}
	p := newPlanner(t, m, rec)

	results, err := p.PlanAll(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	names := []string{results[0].Interface, results[1].Interface, results[2].Interface}
	assert.Equal(t, []string{"com.acme.Broken", "com.acme.OrderQueries", "com.acme.Procedures"}, names)

	assert.ErrorIs(t, results[0].Err, mapping.ErrNoMapping)
	assert.Nil(t, results[0].Plan)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Plan.Methods, 3)
	assert.NoError(t, results[2].Err)

	assert.Equal(t, 3, rec.count(), "failures are recorded too")
}

func TestPlanner_PlanAllCancelled(t *testing.T) {
	p := newPlanner(t, loadOrders(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PlanAll(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanner_RecorderFailureIsNotFatal(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger()
	scope := mapping.NewScope("orders")
	m := loadOrders(t)
	p := NewPlanner(Options{
		Manifest: m,
		Registry: newRegistry(t, m, scope),
		Scope:    scope,
		Recorder: &fakeRecorder{fail: errors.New("disk full")},
		Logger:   logger,
	})
	defer p.Close()

	_, err := p.Plan(context.Background(), "com.acme.Procedures")
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "failed to record build")
	assert.Contains(t, logs.String(), "disk full")
}

func TestPlanner_SharedCoordinator(t *testing.T) {
	m := loadOrders(t)
	coord := generation.NewCoordinator[*Interface](nil)
	scope := mapping.NewScope("orders")
	reg := newRegistry(t, m, scope)

	a := NewPlanner(Options{Manifest: m, Registry: reg, Scope: scope, Coordinator: coord})
	b := NewPlanner(Options{Manifest: m, Registry: reg, Scope: scope, Coordinator: coord})

	pa, err := a.Plan(context.Background(), "com.acme.OrderQueries")
	require.NoError(t, err)
	pb, err := b.Plan(context.Background(), "com.acme.OrderQueries")
	require.NoError(t, err)
	assert.Same(t, pa, pb, "planners sharing a coordinator and scope share plans")

	a.Close()
	assert.Equal(t, generation.Absent, coord.State(scope, pa.Key))
}
