// Package llm provides the language-model layer for the agent services.
//
// The interface is intentionally small: agents make one-shot,
// schema-constrained completion calls and never stream. Provider
// adapters (OpenAI, Anthropic, Bedrock, Gemini) convert between the
// neutral Message type and each provider's wire format.
//
// Key concepts:
//   - LLM: the minimal contract every provider adapter implements
//   - CallOption: per-call tuning (temperature, max tokens, JSON schema)
//   - WithJSONSchema: constrains the completion to a JSON schema, using
//     native structured output where the provider has it and a system
//     prompt directive where it does not
//   - ExtractJSON: the shared extraction call used by every agent stage
//
// Example:
//
//	model := llm.NewOpenAILLM(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	messages := []*llm.Message{
//	    llm.NewMessage(llm.RoleSystem, "You select news articles."),
//	    llm.NewMessage(llm.RoleUser, payload),
//	}
//	response, err := model.Complete(ctx, messages, llm.WithTemperature(0.2))
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a model conversation.
type Message struct {
	Role     string                 `json:"role"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage creates a message with initialized metadata.
func NewMessage(role, content string) *Message {
	return &Message{
		Role:     role,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

// LLM is the minimal interface for model interaction.
//
// Adapters return responses with Role "assistant" and record provider
// metadata (model, normalized token usage, finish reason) on the
// response's Metadata.
type LLM interface {
	// Complete generates a single completion.
	Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error)

	// Model returns the model identifier for this instance.
	Model() string

	// Unwrap returns the underlying provider client for advanced
	// features. Using it ties the caller to one provider.
	Unwrap() interface{}
}

// JSONSchemaSpec names a JSON schema constraint for a completion.
type JSONSchemaSpec struct {
	Name   string
	Schema json.RawMessage
}

// CallOptions holds per-call options for LLM calls.
type CallOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// JSONSchema constrains the completion to a schema.
	JSONSchema *JSONSchemaSpec

	// Extra carries provider-specific options.
	Extra map[string]interface{}
}

// CallOption is a functional option for configuring LLM calls.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature (typically 0.0-2.0).
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = &maxTokens
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) CallOption {
	return func(opts *CallOptions) {
		opts.TopP = &topP
	}
}

// WithJSONSchema constrains the completion to the named JSON schema.
func WithJSONSchema(name string, schema json.RawMessage) CallOption {
	return func(opts *CallOptions) {
		opts.JSONSchema = &JSONSchemaSpec{Name: name, Schema: schema}
	}
}

// WithExtra adds a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(opts *CallOptions) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[key] = value
	}
}

// BuildCallOptions creates CallOptions from functional options.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// schemaInstruction renders the schema directive for providers without
// native structured output.
func schemaInstruction(spec *JSONSchemaSpec) string {
	return fmt.Sprintf(
		"Respond with a single JSON object that validates against this JSON schema. No prose, no code fences.\nSchema %q:\n%s",
		spec.Name, spec.Schema,
	)
}

// TokenUsage reads the normalized token counts from a response's
// metadata. Missing usage yields zeros.
func TokenUsage(msg *Message) (prompt, completion int64) {
	if msg == nil {
		return 0, 0
	}
	usage, ok := msg.Metadata["usage"].(map[string]interface{})
	if !ok {
		return 0, 0
	}
	return usageCount(usage["prompt_tokens"]), usageCount(usage["completion_tokens"])
}

func usageCount(value interface{}) int64 {
	switch n := value.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
