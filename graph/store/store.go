// Package store persists per-step workflow state.
//
// The engine calls SaveStep after merging each node's update, so a run's
// history can be inspected after the fact. Implementations are safe for
// concurrent use across runs.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run has no persisted steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists workflow state after each step.
type Store[S any] interface {
	// SaveStep records the state after step (1-based) executed nodeID.
	// Saving the same (runID, step) twice overwrites the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the highest-numbered step for runID.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// LoadSteps returns every step for runID ordered by step number.
	LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// StepRecord is one persisted step.
type StepRecord[S any] struct {
	Step      int       `json:"step"`
	NodeID    string    `json:"node_id"`
	State     S         `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Pinger is implemented by stores backed by a database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
