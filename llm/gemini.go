package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLM is an adapter for Google's Gemini models.
//
// WithJSONSchema sets the JSON response MIME type and carries the
// schema directive in the sent parts; the SDK's typed schema support
// covers fewer JSON Schema features than the extraction schemas here
// use, so the schema travels as text.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a Gemini adapter.
//
// Parameters:
//   - apiKey: Google API key; empty falls back to GEMINI_API_KEY then
//     GOOGLE_API_KEY
//   - model: model identifier; empty selects a Flash default
func NewGeminiLLM(apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini api key required: provide apiKey or set GEMINI_API_KEY or GOOGLE_API_KEY")
		}
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiLLM{client: client, model: model}, nil
}

// Model returns the model identifier.
func (g *GeminiLLM) Model() string {
	return g.model
}

// Complete generates a completion from Gemini.
func (g *GeminiLLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	options := BuildCallOptions(opts...)

	model := g.client.GenerativeModel(g.model)
	g.configureModel(model, options)

	history, lastParts := g.convertMessages(messages)
	if options.JSONSchema != nil {
		model.ResponseMIMEType = "application/json"
		lastParts = append(lastParts, genai.Text("\n\n"+schemaInstruction(options.JSONSchema)))
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, lastParts...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	response := NewMessage(RoleAssistant, g.extractContent(resp))
	response.Metadata["model"] = g.model
	if resp.UsageMetadata != nil {
		response.Metadata["usage"] = map[string]interface{}{
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"completion_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != 0 {
		response.Metadata["finish_reason"] = resp.Candidates[0].FinishReason.String()
	}

	return response, nil
}

// convertMessages converts neutral messages to Gemini content. System
// messages are folded into the history as user turns; the last message
// becomes the parts to send.
func (g *GeminiLLM) convertMessages(messages []*Message) ([]*genai.Content, []genai.Part) {
	if len(messages) == 0 {
		return nil, nil
	}

	var history []*genai.Content
	for i := 0; i < len(messages)-1; i++ {
		msg := messages[i]
		history = append(history, &genai.Content{
			Role:  g.mapRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	last := messages[len(messages)-1]
	return history, []genai.Part{genai.Text(last.Content)}
}

// mapRole maps neutral roles to Gemini roles.
func (g *GeminiLLM) mapRole(role string) string {
	switch role {
	case RoleUser, RoleSystem:
		return "user"
	default:
		return "model"
	}
}

// configureModel applies call options to the generative model.
func (g *GeminiLLM) configureModel(model *genai.GenerativeModel, options *CallOptions) {
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		model.Temperature = &temp
	}
	if options.MaxTokens != nil {
		maxTokens := int32(*options.MaxTokens)
		model.MaxOutputTokens = &maxTokens
	}
	if options.TopP != nil {
		topP := float32(*options.TopP)
		model.TopP = &topP
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		topKInt := int32(topK)
		model.TopK = &topKInt
	}
	if stopSequences, ok := options.Extra["stop_sequences"].([]string); ok {
		model.StopSequences = stopSequences
	}
}

// extractContent concatenates the text parts of the first candidate.
func (g *GeminiLLM) extractContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var content string
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content += string(txt)
		}
	}
	return content
}

// Close closes the underlying client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Unwrap returns the underlying *genai.Client.
func (g *GeminiLLM) Unwrap() interface{} {
	return g.client
}

var _ LLM = (*GeminiLLM)(nil)
