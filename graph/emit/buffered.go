package emit

import "sync"

// BufferedEmitter keeps event history in memory, grouped by run.
//
// At most maxRuns runs are retained; when a new run would exceed the limit the
// oldest run's history is dropped. It is used to serve recent run timelines
// without touching the step store.
type BufferedEmitter struct {
	mu      sync.RWMutex
	events  map[string][]Event // runID -> events
	order   []string           // runIDs in first-seen order
	maxRuns int
}

// HistoryFilter narrows GetHistoryWithFilter results. Zero fields match all.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates a BufferedEmitter retaining up to maxRuns runs.
// maxRuns <= 0 means unbounded.
func NewBufferedEmitter(maxRuns int) *BufferedEmitter {
	return &BufferedEmitter{
		events:  make(map[string][]Event),
		maxRuns: maxRuns,
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.events[event.RunID]; !seen {
		b.order = append(b.order, event.RunID)
		if b.maxRuns > 0 && len(b.order) > b.maxRuns {
			oldest := b.order[0]
			b.order = b.order[1:]
			delete(b.events, oldest)
		}
	}
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of all events for runID, oldest first.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for runID matching filter.
// The result is never nil.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

// Runs returns the retained run IDs, oldest first.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}

// Clear drops history for runID, or for every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		b.order = nil
		return
	}
	delete(b.events, runID)
	for i, id := range b.order {
		if id == runID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
