package mapping

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querymap/internal/testutil"
	"github.com/leapstack-labs/querymap/pkg/directive"
)

func moneyAdapter() Descriptor {
	return Descriptor{
		MappableTypes: []TypeRef{"com.acme.Money"},
		Strategy:      JDBCStrategy{Accessor: "money", Columns: 2},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(nil, testutil.NewTestLogger(t))
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")

	require.NoError(t, reg.Register(scope, Result, "money", moneyAdapter()))

	d, err := reg.Resolve(scope, Result, "money", "com.acme.Money")
	require.NoError(t, err)
	assert.Equal(t, "money", d.TypeName)
	assert.Equal(t, 2, d.Strategy.Width())

	_, err = reg.Resolve(scope, Parameter, "money", "com.acme.Money")
	assert.ErrorIs(t, err, ErrNoMapping, "directions have separate tables")
}

func TestRegistry_DuplicateInSameScope(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")

	require.NoError(t, reg.Register(scope, Result, "money", moneyAdapter()))
	err := reg.Register(scope, Result, "money", moneyAdapter())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeAlreadyRegistered)

	// other scopes and the global scope do not conflict
	assert.NoError(t, reg.Register(NewScope("app"), Result, "money", moneyAdapter()))
	assert.NoError(t, reg.Register(Global, Result, "money", moneyAdapter()))
}

func TestRegistry_InvalidRegistration(t *testing.T) {
	reg := newTestRegistry(t)

	assert.ErrorIs(t, reg.Register(Global, Result, "", moneyAdapter()), ErrInvalidTypeName)
	assert.ErrorIs(t, reg.Register(Global, Result, directive.AutoType, moneyAdapter()), ErrInvalidTypeName)
	assert.ErrorIs(t, reg.Register(nil, Result, "money", moneyAdapter()), ErrNilScope)
	assert.ErrorIs(t, reg.RegisterAuto(Result, Descriptor{}), ErrNoMappableTypes)
}

func TestRegistry_ScopeIsolation(t *testing.T) {
	reg := newTestRegistry(t)
	a := NewScope("a")
	b := NewScope("b")

	require.NoError(t, reg.Register(a, Result, "money", moneyAdapter()))

	_, err := reg.Resolve(b, Result, "money", "com.acme.Money")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMapping)
	assert.Contains(t, err.Error(), "no mapping found for money")

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "money", rerr.Name)

	// visible from b once registered globally
	require.NoError(t, reg.Register(Global, Result, "money", moneyAdapter()))
	_, err = reg.Resolve(b, Result, "money", "com.acme.Money")
	assert.NoError(t, err)
}

func TestRegistry_UnregisterIsScoped(t *testing.T) {
	reg := newTestRegistry(t)
	a := NewScope("a")
	b := NewScope("b")

	require.NoError(t, reg.Register(a, Result, "money", moneyAdapter()))
	require.NoError(t, reg.Register(b, Result, "money", moneyAdapter()))

	assert.True(t, reg.Unregister(a, Result, "money"))
	assert.False(t, reg.Unregister(a, Result, "money"))

	_, err := reg.Resolve(a, Result, "money", "com.acme.Money")
	assert.ErrorIs(t, err, ErrNoMapping)
	_, err = reg.Resolve(b, Result, "money", "com.acme.Money")
	assert.NoError(t, err)

	// the name is free again in a
	assert.NoError(t, reg.Register(a, Result, "money", moneyAdapter()))
}

func TestRegistry_ScopeShadowsGlobal(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")

	require.NoError(t, reg.Register(Global, Result, "money", moneyAdapter()))
	local := moneyAdapter()
	local.Strategy = JDBCStrategy{Accessor: "local-money", Columns: 2}
	require.NoError(t, reg.Register(scope, Result, "money", local))

	d, err := reg.Resolve(scope, Result, "money", "com.acme.Money")
	require.NoError(t, err)
	assert.Equal(t, "local-money", d.Strategy.Name())
}

func TestRegistry_IncompatibleType(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")
	reg.Hierarchy().Declare("com.acme.Euro", "com.acme.Money")

	require.NoError(t, reg.Register(scope, Result, "money", moneyAdapter()))

	_, err := reg.Resolve(scope, Result, "money", "com.acme.Euro")
	assert.NoError(t, err, "subtypes of a mappable type are accepted")

	_, err = reg.Resolve(scope, Result, "money", "java.lang.String")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncompatibleType)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, []TypeRef{"com.acme.Money"}, rerr.Accepts)
}

func TestRegistry_ResolveAutoIsExact(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.RegisterAuto(Result, Descriptor{
		MappableTypes: []TypeRef{"java.lang.Number"},
		Strategy:      JDBCStrategy{Accessor: "number", Columns: 1},
	}))

	d, err := reg.ResolveAuto(Result, "java.lang.Number")
	require.NoError(t, err)
	assert.Empty(t, d.TypeName)

	_, err = reg.ResolveAuto(Result, "java.lang.Integer")
	assert.ErrorIs(t, err, ErrNoMapping, "auto lookup does not follow the hierarchy")

	err = reg.RegisterAuto(Result, Descriptor{MappableTypes: []TypeRef{"java.lang.Number"}})
	assert.ErrorIs(t, err, ErrTypeAlreadyRegistered)
}

func TestRegistry_ResolveDefinition(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, RegisterDefaults(reg))
	scope := NewScope("app")
	require.NoError(t, reg.Register(scope, Result, "money", moneyAdapter()))

	stmt, err := directive.Compile("select a {%%.id}, b {money%%1}, c {money%%.total}, d {int%%.n} from t where x = {%1}", false)
	require.NoError(t, err)
	require.Len(t, stmt.Results, 4)

	d, err := reg.ResolveDefinition(scope, stmt.Results[0], "java.lang.Long")
	require.NoError(t, err)
	assert.Equal(t, "long", d.Strategy.Name())

	// constructor arguments bypass the compatibility check
	d, err = reg.ResolveDefinition(scope, stmt.Results[1], "java.lang.String")
	require.NoError(t, err)
	assert.Equal(t, "money", d.TypeName)

	_, err = reg.ResolveDefinition(scope, stmt.Results[2], "java.lang.String")
	assert.ErrorIs(t, err, ErrIncompatibleType)

	// named defaults live in the global scope
	d, err = reg.ResolveDefinition(scope, stmt.Results[3], "int")
	require.NoError(t, err)
	assert.Equal(t, "int", d.TypeName)

	d, err = reg.ResolveDefinition(scope, stmt.Parameters[0], "java.lang.String")
	require.NoError(t, err)
	assert.Equal(t, "string", d.Strategy.Name())
}

func TestRegistry_NilScopeLookups(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, RegisterDefaults(reg))

	_, err := reg.Lookup(nil, Parameter, "missing")
	assert.ErrorIs(t, err, ErrNilScope)

	_, err = reg.Resolve(nil, Parameter, "int", "int")
	assert.ErrorIs(t, err, ErrNilScope, "no fallback to Global without a scope")

	stmt, err := directive.Compile("select 1 from t where a = {int%1} and b = {%2}", false)
	require.NoError(t, err)
	_, err = reg.ResolveDefinition(nil, stmt.Parameters[0], "int")
	assert.ErrorIs(t, err, ErrNilScope)

	d, err := reg.ResolveDefinition(nil, stmt.Parameters[1], "java.lang.Long")
	require.NoError(t, err, "auto adapters are global and need no scope")
	assert.Equal(t, "long", d.Strategy.Name())

	assert.False(t, reg.Unregister(nil, Parameter, "int"))
	assert.Empty(t, reg.Names(nil, Parameter))
}

func TestRegistry_TearDown(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")
	require.NoError(t, reg.Register(scope, Result, "money", moneyAdapter()))
	require.NoError(t, reg.Register(scope, Parameter, "money", moneyAdapter()))
	assert.Equal(t, []string{"money"}, reg.Names(scope, Result))

	reg.TearDown(scope)

	assert.Empty(t, reg.Names(scope, Result))
	_, err := reg.Lookup(scope, Parameter, "money")
	assert.ErrorIs(t, err, ErrNoMapping)
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	reg := newTestRegistry(t)
	scope := NewScope("app")

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("t%d", i%4)
			// only one registration per name may succeed
			errs <- reg.Register(scope, Result, name, moneyAdapter())
			_, err := reg.Lookup(scope, Result, name)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrTypeAlreadyRegistered):
			dup++
		}
	}
	assert.Equal(t, workers+4, ok, "4 registrations and every lookup succeed")
	assert.Equal(t, workers-4, dup)
	assert.Len(t, reg.Names(scope, Result), 4)
}
