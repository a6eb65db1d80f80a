package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/ragflow/graph/model"
)

func TestChatModel_Chat(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "test-key" {
			t.Errorf("X-Api-Key = %q", key)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "relevant"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	m := NewChatModel("test-key", "", option.WithBaseURL(srv.URL+"/"))
	out, err := m.Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "grade documents"},
		{Role: model.RoleUser, Content: "docs..."},
	}, model.WithJSON(nil), model.WithMaxTokens(10))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if out.Text != "relevant" || out.Model != DefaultModel {
		t.Errorf("out = %+v", out)
	}
	if out.Usage.Total() != 21 {
		t.Errorf("usage total = %d", out.Usage.Total())
	}

	if got["max_tokens"] != float64(10) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	system, _ := got["system"].([]interface{})
	if len(system) != 1 {
		t.Fatalf("system = %v", got["system"])
	}
	sysText, _ := system[0].(map[string]interface{})["text"].(string)
	if !strings.HasPrefix(sysText, "grade documents") || !strings.HasSuffix(sysText, jsonInstruction) {
		t.Errorf("system text = %q", sysText)
	}
	msgs, _ := got["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Errorf("expected system message lifted out, got %d messages", len(msgs))
	}
}

func TestChatModel_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"m","type":"message","role":"assistant","model":"x","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer srv.Close()

	m := NewChatModel("k", "x", option.WithBaseURL(srv.URL+"/"))
	if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}); !errors.Is(err, model.ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestConvertMessages(t *testing.T) {
	params := convertMessages([]model.Message{
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
	})
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Role != "user" || params[1].Role != "assistant" {
		t.Errorf("roles = %v, %v", params[0].Role, params[1].Role)
	}
}
