package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractionRequest describes one schema-constrained extraction call.
type ExtractionRequest struct {
	// Instruction is the system prompt describing the task.
	Instruction string

	// Input is the user payload the model extracts from.
	Input string

	// SchemaName and Schema constrain the completion.
	SchemaName string
	Schema     json.RawMessage

	// Fallback is returned when the model produces an empty completion.
	// Callers pre-seed it with the empty collection their schema shapes.
	Fallback json.RawMessage
}

// ExtractJSON runs one extraction call and returns the raw JSON text of
// the completion.
//
// The result is checked for JSON well-formedness only. Whether it
// actually conforms to the schema is left to the provider's structured
// output; callers unmarshal into their own types and handle missing
// fields there.
func ExtractJSON(ctx context.Context, model LLM, req ExtractionRequest, opts ...CallOption) (json.RawMessage, error) {
	if req.Instruction == "" {
		return nil, errors.New("llm: extraction instruction is required")
	}
	if len(req.Schema) == 0 {
		return nil, errors.New("llm: extraction schema is required")
	}

	messages := []*Message{
		NewMessage(RoleSystem, req.Instruction),
		NewMessage(RoleUser, req.Input),
	}
	callOpts := append([]CallOption{WithJSONSchema(req.SchemaName, req.Schema)}, opts...)

	response, err := model.Complete(ctx, messages, callOpts...)
	if err != nil {
		return nil, err
	}

	text := stripCodeFence(strings.TrimSpace(response.Content))
	if text == "" {
		if len(req.Fallback) > 0 {
			return req.Fallback, nil
		}
		return nil, errors.New("llm: model returned an empty completion")
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("llm: model returned invalid JSON: %s", truncate(text, 200))
	}
	return json.RawMessage(text), nil
}

// stripCodeFence removes a surrounding markdown code fence. Providers
// without native structured output occasionally wrap JSON in one.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	trimmed := strings.TrimPrefix(text, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json" etc.).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
