package model

import (
	"context"
	"errors"
	"testing"
)

func TestApplyOptions(t *testing.T) {
	schema := map[string]interface{}{"type": "object"}
	opts := ApplyOptions(WithTemperature(0.2), nil, WithMaxTokens(256), WithJSON(schema))

	if opts.Temperature == nil || *opts.Temperature != 0.2 {
		t.Errorf("Temperature = %v", opts.Temperature)
	}
	if opts.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d", opts.MaxTokens)
	}
	if !opts.JSON || opts.Schema["type"] != "object" {
		t.Errorf("JSON = %v, Schema = %v", opts.JSON, opts.Schema)
	}

	if zero := ApplyOptions(); zero.Temperature != nil || zero.JSON {
		t.Errorf("expected zero options, got %+v", zero)
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "one"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleSystem, Content: "two"},
		{Role: RoleAssistant, Content: "a"},
	})

	if system != "one\n\ntwo" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 || rest[0].Role != RoleUser || rest[1].Role != RoleAssistant {
		t.Errorf("rest = %+v", rest)
	}
}

func TestMockChatModel(t *testing.T) {
	ctx := context.Background()

	t.Run("responses in order then repeat", func(t *testing.T) {
		mock := &MockChatModel{Responses: []ChatOut{{Text: "first"}, {Text: "second"}}}
		for _, want := range []string{"first", "second", "second"} {
			out, err := mock.Chat(ctx, []Message{{Role: RoleUser, Content: "x"}})
			if err != nil || out.Text != want {
				t.Errorf("Chat = (%q, %v), want %q", out.Text, err, want)
			}
		}
		if mock.CallCount() != 3 {
			t.Errorf("CallCount = %d", mock.CallCount())
		}
		mock.Reset()
		if out, _ := mock.Chat(ctx, nil); out.Text != "first" {
			t.Errorf("after Reset got %q", out.Text)
		}
	})

	t.Run("error and options recorded", func(t *testing.T) {
		boom := errors.New("boom")
		mock := &MockChatModel{Err: boom}
		if _, err := mock.Chat(ctx, nil, WithTemperature(0)); !errors.Is(err, boom) {
			t.Errorf("error = %v", err)
		}
		if mock.Calls[0].Options.Temperature == nil {
			t.Error("expected options to be recorded")
		}
	})

	t.Run("handler", func(t *testing.T) {
		mock := &MockChatModel{Handler: func(messages []Message, _ CallOptions) (ChatOut, error) {
			return ChatOut{Text: "echo " + messages[0].Content}, nil
		}}
		out, _ := mock.Chat(ctx, []Message{{Role: RoleUser, Content: "hi"}})
		if out.Text != "echo hi" {
			t.Errorf("Text = %q", out.Text)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		mock := &MockChatModel{}
		if _, err := mock.Chat(cctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v", err)
		}
		if mock.CallCount() != 0 {
			t.Error("cancelled call should not be recorded")
		}
	})
}
