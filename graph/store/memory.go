package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps step history in memory.
//
// States are deep-copied on save and on load so callers cannot mutate stored
// history. At most maxRuns runs are retained; saving a step for a new run
// beyond that limit evicts the oldest run. History does not survive a restart.
type MemStore[S any] struct {
	mu      sync.RWMutex
	steps   map[string][]StepRecord[S] // runID -> steps in save order
	order   []string                   // runIDs in first-seen order
	maxRuns int
}

// NewMemStore creates an in-memory store retaining up to maxRuns runs.
// maxRuns <= 0 means unbounded.
func NewMemStore[S any](maxRuns int) *MemStore[S] {
	return &MemStore[S]{
		steps:   make(map[string][]StepRecord[S]),
		maxRuns: maxRuns,
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	copied, err := cloneState(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records, seen := m.steps[runID]
	if !seen {
		m.order = append(m.order, runID)
		if m.maxRuns > 0 && len(m.order) > m.maxRuns {
			delete(m.steps, m.order[0])
			m.order = m.order[1:]
		}
	}

	record := StepRecord[S]{Step: step, NodeID: nodeID, State: copied, CreatedAt: time.Now()}
	for i := range records {
		if records[i].Step == step {
			records[i] = record
			return nil
		}
	}
	m.steps[runID] = append(records, record)
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	records := m.steps[runID]
	if len(records) == 0 {
		m.mu.RUnlock()
		var zero S
		return zero, 0, ErrNotFound
	}
	latest := records[0]
	for _, record := range records[1:] {
		if record.Step > latest.Step {
			latest = record
		}
	}
	m.mu.RUnlock()

	state, err = cloneState(latest.State)
	if err != nil {
		var zero S
		return zero, 0, err
	}
	return state, latest.Step, nil
}

// LoadSteps implements Store.
func (m *MemStore[S]) LoadSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	records := make([]StepRecord[S], len(m.steps[runID]))
	copy(records, m.steps[runID])
	m.mu.RUnlock()

	if len(records) == 0 {
		return nil, ErrNotFound
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	for i := range records {
		state, err := cloneState(records[i].State)
		if err != nil {
			return nil, err
		}
		records[i].State = state
	}
	return records, nil
}

// Runs returns the retained run IDs, oldest first.
func (m *MemStore[S]) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
