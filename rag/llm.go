package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/ragflow/graph/model"
)

// ChatCompleter adapts a model.ChatModel to TextCompleter and
// StructuredCompleter.
//
// Example:
//
//	grader := rag.NewChatCompleter(openai.NewChatModel(key, "gpt-4o-mini"),
//	    model.WithTemperature(0))
type ChatCompleter struct {
	model   model.ChatModel
	options []model.CallOption
}

// NewChatCompleter binds m with call options applied to every request.
func NewChatCompleter(m model.ChatModel, opts ...model.CallOption) *ChatCompleter {
	return &ChatCompleter{model: m, options: opts}
}

// Complete implements TextCompleter. Blank replies are reported as
// model.ErrEmptyResponse.
func (c *ChatCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return c.chat(ctx, prompt, c.options)
}

// CompleteStructured implements StructuredCompleter.
func (c *ChatCompleter) CompleteStructured(ctx context.Context, prompt Prompt, schema Schema, out interface{}) error {
	opts := make([]model.CallOption, 0, len(c.options)+1)
	opts = append(opts, c.options...)
	opts = append(opts, model.WithJSON(schema))

	text, err := c.chat(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func (c *ChatCompleter) chat(ctx context.Context, prompt Prompt, opts []model.CallOption) (string, error) {
	messages := make([]model.Message, 0, 2)
	if prompt.System != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: prompt.System})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt.User})

	out, err := c.model.Chat(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", model.ErrEmptyResponse
	}
	return text, nil
}

// extractJSON strips a Markdown code fence some models wrap JSON in.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
