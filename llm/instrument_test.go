package llm

import (
	"context"
	"errors"
	"testing"
)

func TestInstrumentedDelegates(t *testing.T) {
	mock := &MockLLM{
		model: "mock-model",
		completeFunc: func(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
			response := NewMessage(RoleAssistant, "done")
			response.Metadata["usage"] = map[string]interface{}{
				"prompt_tokens":     120,
				"completion_tokens": 48,
			}
			return response, nil
		},
	}

	// Nil metrics must disable recording without changing behavior.
	model := NewInstrumented(mock, "openai", nil)

	response, err := model.Complete(context.Background(), []*Message{NewMessage(RoleUser, "hi")})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.Content != "done" {
		t.Errorf("Content = %q, want done", response.Content)
	}
	if model.Model() != "mock-model" {
		t.Errorf("Model() = %q", model.Model())
	}
	if model.Unwrap() != mock {
		t.Error("Unwrap should reach the inner adapter")
	}
}

func TestInstrumentedPropagatesErrors(t *testing.T) {
	wantErr := errors.New("rate limited")
	mock := &MockLLM{
		completeFunc: func(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
			return nil, wantErr
		},
	}

	model := NewInstrumented(mock, "openai", nil)

	if _, err := model.Complete(context.Background(), []*Message{NewMessage(RoleUser, "hi")}); !errors.Is(err, wantErr) {
		t.Fatalf("Complete error = %v, want the adapter's error", err)
	}
}
