// Package state records the history of plan generations in SQLite.
// Every build the planner runs becomes one row: which interface was built
// in which scope, how it ended and how many methods it planned.
package state

import (
	"context"
	"time"

	"github.com/leapstack-labs/querymap/pkg/generation"
)

// Status is the outcome of a generation.
type Status string

// Status values.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Generation is one recorded build.
type Generation struct {
	ID          string
	Scope       string
	Key         generation.Key
	Status      Status
	Methods     int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Duration is the build time, zero while the generation is running.
func (g *Generation) Duration() time.Duration {
	if g.CompletedAt == nil {
		return 0
	}
	return g.CompletedAt.Sub(g.StartedAt)
}

// Store persists generations.
type Store interface {
	StartGeneration(ctx context.Context, scope string, key generation.Key) (*Generation, error)
	CompleteGeneration(ctx context.Context, id string, status Status, methods int, errMsg string) error
	LatestGeneration(ctx context.Context, key generation.Key) (*Generation, error)
	ListGenerations(ctx context.Context, limit int) ([]*Generation, error)
	Close() error
}
