package model

import (
	"context"
	"sync"
)

// MockChatModel is a test implementation of ChatModel.
//
// Responses are returned in order and the last one repeats once the list is
// exhausted. Err, when set, is returned instead. Every call is recorded.
//
// Example:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{{Text: "first"}, {Text: "second"}},
//	}
type MockChatModel struct {
	Responses []ChatOut
	Err       error

	// Handler, when set, computes the response from the call and takes
	// precedence over Responses and Err.
	Handler func(messages []Message, opts CallOptions) (ChatOut, error)

	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
	Options  CallOptions
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, opts ...CallOption) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	options := ApplyOptions(opts...)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Options: options})

	if m.Handler != nil {
		return m.Handler(messages, options)
	}
	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and rewinds the response sequence.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of Chat calls so far.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
