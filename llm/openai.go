package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAILLM is an adapter for OpenAI chat models and OpenAI-compatible
// gateways.
//
// WithJSONSchema maps to the strict json_schema response format, which
// is the preferred path for structured extraction.
//
// Example:
//
//	model := NewOpenAILLM("sk-...", "gpt-4o")
//	response, err := model.Complete(ctx, messages,
//	    WithTemperature(0.2),
//	    WithJSONSchema("trade_proposals", schema),
//	)
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates an OpenAI adapter against the default endpoint.
//
// Parameters:
//   - apiKey: OpenAI API key
//   - model: model identifier (e.g. "gpt-4o"); empty selects gpt-4o
func NewOpenAILLM(apiKey, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAILLMWithBaseURL creates an OpenAI adapter against a custom
// endpoint. Use this for OpenAI-compatible gateways (LiteLLM, Ollama,
// corporate proxies).
func NewOpenAILLMWithBaseURL(apiKey, model, baseURL string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	return &OpenAILLM{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Model returns the model identifier.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Complete generates a completion.
//
// Response metadata carries:
//   - model: model reported by the API
//   - usage: prompt_tokens, completion_tokens, total_tokens
//   - finish_reason: why generation stopped
func (o *OpenAILLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	options := BuildCallOptions(opts...)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.convertMessages(messages),
	}

	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}
	if options.JSONSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   options.JSONSchema.Name,
				Schema: options.JSONSchema.Schema,
				Strict: true,
			},
		}
	}

	if fp, ok := options.Extra["frequency_penalty"].(float64); ok {
		req.FrequencyPenalty = float32(fp)
	}
	if pp, ok := options.Extra["presence_penalty"].(float64); ok {
		req.PresencePenalty = float32(pp)
	}
	if stop, ok := options.Extra["stop"].([]string); ok {
		req.Stop = stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	response := NewMessage(RoleAssistant, resp.Choices[0].Message.Content)
	response.Metadata["model"] = resp.Model
	response.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}
	response.Metadata["finish_reason"] = resp.Choices[0].FinishReason
	response.Metadata["id"] = resp.ID

	return response, nil
}

// convertMessages converts neutral messages to OpenAI chat format.
func (o *OpenAILLM) convertMessages(messages []*Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case RoleSystem, RoleUser:
		default:
			role = openai.ChatMessageRoleAssistant
		}
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return converted
}

// Unwrap returns the underlying *openai.Client.
func (o *OpenAILLM) Unwrap() interface{} {
	return o.client
}

var _ LLM = (*OpenAILLM)(nil)
