// Package model provides LLM integration adapters.
//
// ChatModel is the single abstraction every provider implements. Providers live
// in subpackages (openai, anthropic, google) and wrap the official SDKs; the
// rest of the module only sees this package's types.
package model

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ChatModel defines the interface for LLM chat providers.
//
// Implementations should:
//   - Convert Message values to the provider's format.
//   - Honor CallOptions they support and ignore the rest.
//   - Report token usage when the provider returns it.
//   - Respect context cancellation and timeouts.
//
// Retries are not the provider's job; wrap a model with WithRetry instead.
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "Answer briefly."},
//	    {Role: model.RoleUser, Content: "What is the capital of France?"},
//	}, model.WithTemperature(0))
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text is the generated response.
	Text string

	// Model is the model that produced the response, as reported by the
	// provider when available.
	Model string

	// Usage reports consumed tokens. Zero when the provider does not say.
	Usage Usage
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CallOptions are per-call generation settings.
type CallOptions struct {
	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// MaxTokens caps the response length; 0 uses the provider default.
	MaxTokens int

	// JSON asks the provider for a JSON object response.
	JSON bool

	// Schema optionally describes the expected JSON object. Providers with
	// native schema support enforce it; others include it in the prompt only
	// through the caller.
	Schema map[string]interface{}
}

// CallOption configures a single Chat call.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = n
	}
}

// WithJSON requests a JSON object response, optionally constrained by schema.
func WithJSON(schema map[string]interface{}) CallOption {
	return func(o *CallOptions) {
		o.JSON = true
		o.Schema = schema
	}
}

// ApplyOptions folds opts into a CallOptions value. Nil options are skipped.
func ApplyOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line. Providers that take the
// system prompt as a separate parameter use this.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	conversation := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role != RoleSystem {
			conversation = append(conversation, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, conversation
}
