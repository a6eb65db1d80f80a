// Package emit provides observability event emitters for workflow execution.
//
// Emitters receive events from the engine and route them to logs, traces,
// in-memory history or live per-run subscribers. Emit must be safe for
// concurrent use and must not block the engine.
package emit

// Emitter receives workflow events.
type Emitter interface {
	Emit(event Event)
}

// Multi fans each event out to several emitters in order. Nil entries are
// skipped.
type Multi []Emitter

// NewMulti returns a Multi over the non-nil emitters.
func NewMulti(emitters ...Emitter) Multi {
	m := make(Multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	return m
}

// Emit implements Emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
