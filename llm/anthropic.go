package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AnthropicLLM is an adapter for Anthropic's Claude models over the
// Messages API.
//
// The Messages API has no response-format parameter, so WithJSONSchema
// is honored by appending the schema directive to the system prompt and
// expecting a bare JSON object back.
type AnthropicLLM struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicLLM creates an Anthropic adapter.
//
// Parameters:
//   - apiKey: Anthropic API key
//   - model: model identifier; empty selects a Haiku default
func NewAnthropicLLM(apiKey, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}
	return &AnthropicLLM{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.anthropic.com/v1",
		httpClient: &http.Client{},
	}
}

// Model returns the model identifier.
func (a *AnthropicLLM) Model() string {
	return a.model
}

// anthropicRequest is the request structure for the Messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the response structure from the Messages API.
type anthropicResponse struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete generates a completion from Claude.
//
// Response metadata carries the model, normalized token usage and the
// stop reason.
func (a *AnthropicLLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	options := BuildCallOptions(opts...)

	anthropicMessages, systemPrompt := a.convertMessages(messages)
	if options.JSONSchema != nil {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += schemaInstruction(options.JSONSchema)
	}

	req := anthropicRequest{
		Model:     a.model,
		Messages:  anthropicMessages,
		MaxTokens: 4096,
		System:    systemPrompt,
	}
	if options.Temperature != nil {
		req.Temperature = options.Temperature
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = options.TopP
	}

	resp, err := a.makeRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var content string
	if len(decoded.Content) > 0 {
		content = decoded.Content[0].Text
	}

	response := NewMessage(RoleAssistant, content)
	response.Metadata["model"] = decoded.Model
	response.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     decoded.Usage.InputTokens,
		"completion_tokens": decoded.Usage.OutputTokens,
		"total_tokens":      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
	}
	response.Metadata["stop_reason"] = decoded.StopReason
	response.Metadata["id"] = decoded.ID

	return response, nil
}

// convertMessages converts neutral messages to Anthropic format. System
// messages go to the dedicated system parameter.
func (a *AnthropicLLM) convertMessages(messages []*Message) ([]anthropicMessage, string) {
	var converted []anthropicMessage
	var systemPrompt string

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemPrompt = msg.Content
			continue
		}
		role := "assistant"
		if msg.Role == RoleUser {
			role = "user"
		}
		converted = append(converted, anthropicMessage{Role: role, Content: msg.Content})
	}

	return converted, systemPrompt
}

// makeRequest posts one Messages API request.
func (a *AnthropicLLM) makeRequest(ctx context.Context, req anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/messages", a.baseURL),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic api error (status %d): %s", resp.StatusCode, string(raw))
	}

	return resp, nil
}

// Unwrap returns the underlying *http.Client.
func (a *AnthropicLLM) Unwrap() interface{} {
	return a.httpClient
}

var _ LLM = (*AnthropicLLM)(nil)
