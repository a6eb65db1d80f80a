// Package openai adapts the official OpenAI Go SDK to model.ChatModel and
// provides an embedding client for vector retrieval.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/ragflow/graph/model"
)

// DefaultChatModel is used when NewChatModel receives an empty model name.
const DefaultChatModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI's chat completions API.
//
// Example:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "hi"}})
type ChatModel struct {
	client    *openai.Client
	modelName string
}

// NewChatModel creates a ChatModel. Extra request options (base URL, HTTP
// client) are passed through to the SDK. SDK-level retries are disabled;
// wrap the model with model.WithRetry instead.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultChatModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	client := openai.NewClient(reqOpts...)
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
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if callOpts.Temperature != nil {
		params.Temperature = openai.Float(*callOpts.Temperature)
	}
	if callOpts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(callOpts.MaxTokens))
	}
	if callOpts.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// DefaultEmbeddingModel is used when NewEmbedder receives an empty model name.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns text into vectors with the OpenAI embeddings API.
type Embedder struct {
	client    *openai.Client
	modelName string
}

// NewEmbedder creates an Embedder.
func NewEmbedder(apiKey, modelName string, opts ...option.RequestOption) *Embedder {
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(reqOpts...)
	return &Embedder{client: &client, modelName: modelName}
}

// Embed returns the embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: openai.EmbeddingModel(e.modelName),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: no data returned")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
