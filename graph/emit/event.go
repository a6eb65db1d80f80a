package emit

// Event is an observability record produced during workflow execution.
//
// The engine emits one event when a node starts, one when it completes or
// fails, and one when the run ends. Meta carries optional structured detail
// such as "latency_ms", "error" or domain-specific keys.
type Event struct {
	// RunID identifies the workflow execution.
	RunID string

	// Step is the 1-based sequence number of the node execution. Run-level
	// events carry the number of the last step.
	Step int

	// NodeID is the node the event refers to; empty for run-level events.
	NodeID string

	// Msg is one of the Msg* constants or a custom message.
	Msg string

	// Meta holds additional attributes.
	Meta map[string]interface{}
}

// Messages emitted by the engine.
const (
	MsgNodeStarted   = "node started"
	MsgNodeCompleted = "node completed"
	MsgNodeFailed    = "node failed"
	MsgRunCompleted  = "run completed"
	MsgRunFailed     = "run failed"
)

// IsTerminal reports whether e marks the end of a run.
func (e Event) IsTerminal() bool {
	return e.Msg == MsgRunCompleted || e.Msg == MsgRunFailed
}
