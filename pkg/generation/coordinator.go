// Package generation coordinates the builds of generated query objects so
// that at most one build per key runs at a time within a scope.
//
// Each key moves through three states:
//
//	Absent --Claim--> Pending --Publish(ok)--> Ready
//	                          --Publish(failed)--> Absent
//
// Callers that claim a pending key block until the builder publishes. A
// failed build is never cached; the next caller builds again. Only the
// Ticket handed out by the claim that moved a key to Pending can publish it.
package generation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/querymap/pkg/mapping"
)

// ErrScopeClosed is returned to callers waiting on a key whose scope is torn
// down before the build completes.
var ErrScopeClosed = errors.New("generation scope torn down")

// State is the cache state of one key.
type State int

// State constants.
const (
	Absent State = iota
	Pending
	Ready
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Key identifies one generated artifact: the declaring interface and,
// optionally, the base type the implementation extends.
type Key struct {
	Interface string
	Base      string
}

func (k Key) String() string {
	if k.Base == "" {
		return k.Interface
	}
	return k.Interface + ":" + k.Base
}

type entry[A any] struct {
	state    State
	artifact A
}

// scopeCache holds the entries of one scope. Its cond shares mu.
type scopeCache[A any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[Key]*entry[A]
	closed  bool
	waiting int
}

// Ticket is the right to publish one claimed build. It is spent by the
// first Publish and goes stale when its scope is torn down.
type Ticket[A any] struct {
	sc    *scopeCache[A]
	e     *entry[A]
	scope *mapping.Scope
	key   Key
}

// Key returns the key the ticket was claimed for.
func (t *Ticket[A]) Key() Key { return t.key }

func newScopeCache[A any]() *scopeCache[A] {
	c := &scopeCache[A]{entries: make(map[Key]*entry[A])}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Coordinator caches artifacts of type A per scope and key.
type Coordinator[A any] struct {
	mu     sync.Mutex
	scopes map[*mapping.Scope]*scopeCache[A]
	logger *slog.Logger
}

// NewCoordinator creates an empty coordinator. A nil logger discards
// output.
func NewCoordinator[A any](logger *slog.Logger) *Coordinator[A] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator[A]{
		scopes: make(map[*mapping.Scope]*scopeCache[A]),
		logger: logger,
	}
}

func (c *Coordinator[A]) cache(scope *mapping.Scope, create bool) *scopeCache[A] {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.scopes[scope]
	if !ok && create {
		sc = newScopeCache[A]()
		c.scopes[scope] = sc
	}
	return sc
}

// Claim returns the cached artifact for key if it is ready. If another
// caller is building it, Claim blocks until that build is published and
// then checks again. If the key is absent it is marked pending and Claim
// returns a non-nil ticket: the caller must build the artifact and Publish
// it with that ticket.
//
// There is no timeout; a builder that never publishes stalls every waiter.
func (c *Coordinator[A]) Claim(scope *mapping.Scope, key Key) (artifact A, ticket *Ticket[A], err error) {
	var zero A
	sc := c.cache(scope, true)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	for {
		if sc.closed {
			return zero, nil, fmt.Errorf("claim %s in scope %s: %w", key, scope, ErrScopeClosed)
		}
		e, ok := sc.entries[key]
		if !ok {
			e = &entry[A]{state: Pending}
			sc.entries[key] = e
			c.logger.Debug("claimed generation", "scope", scope.String(), "key", key.String())
			return zero, &Ticket[A]{sc: sc, e: e, scope: scope, key: key}, nil
		}
		if e.state == Ready {
			return e.artifact, nil, nil
		}
		// Wait can wake spuriously or for another key; the loop re-checks.
		sc.waiting++
		sc.cond.Wait()
		sc.waiting--
	}
}

// Publish completes the build of ticket. With ok the artifact is cached and
// becomes Ready; otherwise the key returns to Absent so that a later caller
// builds again. All waiters are woken. A spent ticket, or one whose scope
// was torn down since the claim, changes nothing and Publish returns false.
func (c *Coordinator[A]) Publish(ticket *Ticket[A], artifact A, ok bool) bool {
	if ticket == nil {
		return false
	}
	sc := ticket.sc
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed || sc.entries[ticket.key] != ticket.e || ticket.e.state != Pending {
		c.logger.Debug("stale publish dropped", "scope", ticket.scope.String(), "key", ticket.key.String())
		return false
	}
	if ok {
		ticket.e.state = Ready
		ticket.e.artifact = artifact
	} else {
		delete(sc.entries, ticket.key)
	}
	c.logger.Debug("published generation", "scope", ticket.scope.String(), "key", ticket.key.String(), "ok", ok)
	sc.cond.Broadcast()
	return true
}

// GetOrBuild returns the artifact for key, running build if no other caller
// has built or is building it. A build error is returned to this caller
// only; waiting callers then retry the build themselves. A panicking build
// is published as failed before the panic continues.
func (c *Coordinator[A]) GetOrBuild(scope *mapping.Scope, key Key, build func() (A, error)) (A, error) {
	var zero A
	artifact, ticket, err := c.Claim(scope, key)
	if err != nil || ticket == nil {
		return artifact, err
	}

	defer func() {
		if r := recover(); r != nil {
			c.Publish(ticket, zero, false)
			panic(r)
		}
	}()

	artifact, err = build()
	if err != nil {
		c.Publish(ticket, zero, false)
		return zero, err
	}
	c.Publish(ticket, artifact, true)
	return artifact, nil
}

// State reports the current state of key.
func (c *Coordinator[A]) State(scope *mapping.Scope, key Key) State {
	sc := c.cache(scope, false)
	if sc == nil {
		return Absent
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if e, ok := sc.entries[key]; ok {
		return e.state
	}
	return Absent
}

// Evict drops a ready artifact so that the next Claim builds it again.
// A pending key is left alone; it reports whether an artifact was dropped.
func (c *Coordinator[A]) Evict(scope *mapping.Scope, key Key) bool {
	sc := c.cache(scope, false)
	if sc == nil {
		return false
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if e, ok := sc.entries[key]; ok && e.state == Ready {
		delete(sc.entries, key)
		c.logger.Debug("evicted generation", "scope", scope.String(), "key", key.String())
		return true
	}
	return false
}

// TearDown drops every entry of scope. Callers blocked in Claim for that
// scope return ErrScopeClosed; builds still running publish into nothing.
// The scope may be used again afterwards and starts empty.
func (c *Coordinator[A]) TearDown(scope *mapping.Scope) {
	c.mu.Lock()
	sc, ok := c.scopes[scope]
	delete(c.scopes, scope)
	c.mu.Unlock()
	if !ok {
		return
	}

	sc.mu.Lock()
	sc.closed = true
	sc.entries = nil
	sc.cond.Broadcast()
	sc.mu.Unlock()
	c.logger.Debug("generation scope torn down", "scope", scope.String())
}
