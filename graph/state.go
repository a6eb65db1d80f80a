package graph

// Reducer merges a partial update into the previous state and returns the new
// state. It must be deterministic and must not retain references to delta
// fields the caller may mutate later.
//
// Example:
//
//	func reduce(prev State, delta Update) State {
//	    if delta.Answer != nil {
//	        prev.Answer = *delta.Answer
//	    }
//	    prev.Trace = append(prev.Trace, delta.Trace...)
//	    return prev
//	}
type Reducer[S, U any] func(prev S, delta U) S
