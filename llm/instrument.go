package llm

import (
	"context"

	"github.com/relayhq/agents/observability"
)

// instrumentedLLM records token usage for every completion.
type instrumentedLLM struct {
	inner    LLM
	provider string
	metrics  *observability.PipelineMetrics
}

// NewInstrumented wraps model so every completion reports its token
// usage to metrics under the given provider label. A nil metrics
// handle disables recording without changing behavior.
func NewInstrumented(model LLM, provider string, metrics *observability.PipelineMetrics) LLM {
	return &instrumentedLLM{inner: model, provider: provider, metrics: metrics}
}

func (m *instrumentedLLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	response, err := m.inner.Complete(ctx, messages, opts...)
	if response != nil {
		prompt, completion := TokenUsage(response)
		if prompt > 0 || completion > 0 {
			m.metrics.RecordTokens(ctx, m.provider, prompt, completion)
		}
	}
	return response, err
}

func (m *instrumentedLLM) Model() string {
	return m.inner.Model()
}

func (m *instrumentedLLM) Unwrap() interface{} {
	return m.inner.Unwrap()
}
