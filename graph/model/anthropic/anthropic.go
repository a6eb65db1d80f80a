// Package anthropic adapts the official Anthropic Go SDK to model.ChatModel.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/ragflow/graph/model"
)

// DefaultModel is used when NewChatModel receives an empty model name.
const DefaultModel = "claude-3-5-haiku-20241022"

const defaultMaxTokens = 4096

// jsonInstruction is appended to the system prompt for JSON calls; the
// Messages API has no response-format switch.
const jsonInstruction = "Respond with a single valid JSON object and nothing else."

// ChatModel implements model.ChatModel for Anthropic's Messages API.
//
// System messages are lifted into the request's system parameter, which is
// how the API expects them.
//
// Example:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Chat(ctx, messages, model.WithMaxTokens(1024))
type ChatModel struct {
	client    *anthropic.Client
	modelName string
}

// NewChatModel creates a ChatModel. Extra request options are passed to the
// SDK; SDK-level retries are disabled in favor of model.WithRetry.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := anthropic.NewClient(reqOpts...)
	return &ChatModel{client: &client, modelName: modelName}
}

// Name returns the configured model name.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts ...model.CallOption) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	callOpts := model.ApplyOptions(opts...)
	system, conversation := model.SplitSystem(messages)
	if callOpts.JSON {
		if system != "" {
			system += "\n\n"
		}
		system += jsonInstruction
	}

	maxTokens := int64(defaultMaxTokens)
	if callOpts.MaxTokens > 0 {
		maxTokens = int64(callOpts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if callOpts.Temperature != nil {
		params.Temperature = anthropic.Float(*callOpts.Temperature)
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  text.String(),
		Model: string(message.Model),
		Usage: model.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
