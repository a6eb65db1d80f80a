// Package google adapts the Gemini SDK (generative-ai-go) to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/ragflow/graph/model"
)

// DefaultModel is used when NewChatModel receives an empty model name.
const DefaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// The SDK client is created on first use and reused; call Close to release it.
// Responses blocked by safety filters are reported as *SafetyFilterError.
type ChatModel struct {
	apiKey    string
	modelName string

	mu     sync.Mutex
	client *genai.Client

	// generate performs the API call; replaced in tests.
	generate func(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
}

// request is one provider call after message conversion.
type request struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
	opts    model.CallOptions
}

// NewChatModel creates a ChatModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{apiKey: apiKey, modelName: modelName}
	m.generate = m.callAPI
	return m
}

// Name returns the configured model name.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Close releases the SDK client.
func (m *ChatModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, opts ...model.CallOption) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: at least one non-system message is required")
	}

	last := conversation[len(conversation)-1]
	req := request{
		system:  system,
		history: convertHistory(conversation[:len(conversation)-1]),
		parts:   []genai.Part{genai.Text(last.Content)},
		opts:    model.ApplyOptions(opts...),
	}

	resp, err := m.generate(ctx, req)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google generate content: %w", err)
	}
	return convertResponse(resp, m.modelName)
}

func (m *ChatModel) getClient(ctx context.Context) (*genai.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return m.client, nil
	}
	if m.apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	m.client = client
	return client, nil
}

func (m *ChatModel) callAPI(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	client, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}

	genModel := client.GenerativeModel(m.modelName)
	if req.system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if req.opts.Temperature != nil {
		genModel.SetTemperature(float32(*req.opts.Temperature))
	}
	if req.opts.MaxTokens > 0 {
		genModel.SetMaxOutputTokens(int32(req.opts.MaxTokens))
	}
	if req.opts.JSON {
		genModel.ResponseMIMEType = "application/json"
		genModel.ResponseSchema = convertSchemaToGenai(req.opts.Schema)
	}

	session := genModel.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

func convertHistory(messages []model.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history
}

func convertResponse(resp *genai.GenerateContentResponse, modelName string) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, newSafetyFilterError(candidate)
	}

	out := model.ChatOut{Model: modelName}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		out.Text = text.String()
	}
	if out.Text == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}
	return out, nil
}

// convertSchemaToGenai converts a JSON schema map to a genai.Schema,
// recursing into object properties and array items.
func convertSchemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}
	if enum, ok := schema["enum"].([]string); ok {
		result.Enum = enum
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]interface{}); ok {
				result.Properties[key] = convertSchemaToGenai(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		result.Items = convertSchemaToGenai(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []interface{}:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// SafetyFilterError reports a response blocked by Gemini's safety filters.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	category string
}

func newSafetyFilterError(candidate *genai.Candidate) *SafetyFilterError {
	category := "unknown"
	for _, rating := range candidate.SafetyRatings {
		if rating != nil && rating.Blocked {
			category = fmt.Sprint(rating.Category)
			break
		}
	}
	return &SafetyFilterError{category: category}
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}
