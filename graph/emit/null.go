package emit

// NullEmitter discards every event.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that discards events.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (n *NullEmitter) Emit(Event) {}
