package llm

import (
	"context"
	"encoding/json"
	"testing"
)

// TestCallOptions tests the functional options pattern.
func TestCallOptions(t *testing.T) {
	tests := []struct {
		name     string
		opts     []CallOption
		validate func(*testing.T, *CallOptions)
	}{
		{
			name: "WithTemperature",
			opts: []CallOption{WithTemperature(0.7)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Temperature == nil {
					t.Fatal("Temperature should not be nil")
				}
				if *opts.Temperature != 0.7 {
					t.Errorf("Expected temperature 0.7, got %f", *opts.Temperature)
				}
			},
		},
		{
			name: "WithMaxTokens",
			opts: []CallOption{WithMaxTokens(1024)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.MaxTokens == nil {
					t.Fatal("MaxTokens should not be nil")
				}
				if *opts.MaxTokens != 1024 {
					t.Errorf("Expected max_tokens 1024, got %d", *opts.MaxTokens)
				}
			},
		},
		{
			name: "WithTopP",
			opts: []CallOption{WithTopP(0.9)},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.TopP == nil {
					t.Fatal("TopP should not be nil")
				}
				if *opts.TopP != 0.9 {
					t.Errorf("Expected top_p 0.9, got %f", *opts.TopP)
				}
			},
		},
		{
			name: "WithJSONSchema",
			opts: []CallOption{WithJSONSchema("trades", json.RawMessage(`{"type":"object"}`))},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.JSONSchema == nil {
					t.Fatal("JSONSchema should not be nil")
				}
				if opts.JSONSchema.Name != "trades" {
					t.Errorf("Expected schema name 'trades', got %s", opts.JSONSchema.Name)
				}
				if string(opts.JSONSchema.Schema) != `{"type":"object"}` {
					t.Errorf("Unexpected schema: %s", opts.JSONSchema.Schema)
				}
			},
		},
		{
			name: "WithExtra",
			opts: []CallOption{WithExtra("custom", "value")},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Extra == nil {
					t.Fatal("Extra should not be nil")
				}
				val, ok := opts.Extra["custom"]
				if !ok {
					t.Fatal("Extra should contain 'custom' key")
				}
				if val != "value" {
					t.Errorf("Expected extra value 'value', got %v", val)
				}
			},
		},
		{
			name: "Multiple options",
			opts: []CallOption{
				WithTemperature(0.5),
				WithMaxTokens(2048),
				WithTopP(0.95),
				WithJSONSchema("articles", json.RawMessage(`{}`)),
			},
			validate: func(t *testing.T, opts *CallOptions) {
				if opts.Temperature == nil || *opts.Temperature != 0.5 {
					t.Error("Temperature not set correctly")
				}
				if opts.MaxTokens == nil || *opts.MaxTokens != 2048 {
					t.Error("MaxTokens not set correctly")
				}
				if opts.TopP == nil || *opts.TopP != 0.95 {
					t.Error("TopP not set correctly")
				}
				if opts.JSONSchema == nil || opts.JSONSchema.Name != "articles" {
					t.Error("JSONSchema not set correctly")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := BuildCallOptions(tt.opts...)
			tt.validate(t, opts)
		})
	}
}

// MockLLM is a mock implementation for testing.
type MockLLM struct {
	model        string
	completeFunc func(context.Context, []*Message, ...CallOption) (*Message, error)
}

func (m *MockLLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, messages, opts...)
	}
	return NewMessage(RoleAssistant, "mock response"), nil
}

func (m *MockLLM) Model() string {
	return m.model
}

func (m *MockLLM) Unwrap() interface{} {
	return m
}

// TestMockLLM tests the mock implementation.
func TestMockLLM(t *testing.T) {
	mock := &MockLLM{model: "mock-model"}
	ctx := context.Background()

	t.Run("Complete", func(t *testing.T) {
		messages := []*Message{NewMessage(RoleUser, "test")}
		response, err := mock.Complete(ctx, messages)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if response.Content != "mock response" {
			t.Errorf("Expected 'mock response', got %s", response.Content)
		}
		if response.Role != RoleAssistant {
			t.Errorf("Expected assistant role, got %s", response.Role)
		}
	})

	t.Run("Model", func(t *testing.T) {
		if mock.Model() != "mock-model" {
			t.Errorf("Expected 'mock-model', got %s", mock.Model())
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		if mock.Unwrap() != mock {
			t.Error("Unwrap should return the mock itself")
		}
	})
}

// TestLLMInterface verifies that concrete implementations satisfy the interface.
func TestLLMInterface(t *testing.T) {
	var _ LLM = &MockLLM{}
	var _ LLM = &OpenAILLM{}
	var _ LLM = &AnthropicLLM{}
	var _ LLM = &BedrockLLM{}
	var _ LLM = &GeminiLLM{}
}

func TestTokenUsage(t *testing.T) {
	msg := NewMessage(RoleAssistant, "done")
	msg.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     120,
		"completion_tokens": 48,
		"total_tokens":      168,
	}

	prompt, completion := TokenUsage(msg)
	if prompt != 120 {
		t.Errorf("Expected 120 prompt tokens, got %d", prompt)
	}
	if completion != 48 {
		t.Errorf("Expected 48 completion tokens, got %d", completion)
	}
}

func TestTokenUsage_MissingMetadata(t *testing.T) {
	prompt, completion := TokenUsage(NewMessage(RoleAssistant, "done"))
	if prompt != 0 || completion != 0 {
		t.Errorf("Expected zeros without usage, got %d/%d", prompt, completion)
	}

	prompt, completion = TokenUsage(nil)
	if prompt != 0 || completion != 0 {
		t.Errorf("Expected zeros for nil message, got %d/%d", prompt, completion)
	}
}

func TestTokenUsage_NumericTypes(t *testing.T) {
	// Counts arrive as int from some SDKs, int32 from others, and
	// float64 after a JSON round trip.
	msg := NewMessage(RoleAssistant, "done")
	msg.Metadata["usage"] = map[string]interface{}{
		"prompt_tokens":     int32(7),
		"completion_tokens": float64(9),
	}

	prompt, completion := TokenUsage(msg)
	if prompt != 7 || completion != 9 {
		t.Errorf("Expected 7/9, got %d/%d", prompt, completion)
	}
}
