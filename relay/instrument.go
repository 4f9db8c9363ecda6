package relay

import (
	"context"

	"github.com/relayhq/agents/observability"
)

// instrumentedPlatform counts sink items written through the store.
type instrumentedPlatform struct {
	inner   Platform
	agentID string
	metrics *observability.PipelineMetrics
}

// NewInstrumented wraps store so every successful bulk sink write
// reports its item count to metrics under the given agent label. A nil
// metrics handle disables recording without changing behavior.
func NewInstrumented(store Platform, agentID string, metrics *observability.PipelineMetrics) Platform {
	return &instrumentedPlatform{inner: store, agentID: agentID, metrics: metrics}
}

func (p *instrumentedPlatform) GetActiveConfig(ctx context.Context, agentID string) (*AgentConfig, error) {
	return p.inner.GetActiveConfig(ctx, agentID)
}

func (p *instrumentedPlatform) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	return p.inner.CreateSession(ctx, params)
}

func (p *instrumentedPlatform) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	return p.inner.UpdateSession(ctx, id, update)
}

func (p *instrumentedPlatform) GetSession(ctx context.Context, id string) (*Session, error) {
	return p.inner.GetSession(ctx, id)
}

func (p *instrumentedPlatform) CreateActivity(ctx context.Context, sessionID string, params ActivityParams) error {
	return p.inner.CreateActivity(ctx, sessionID, params)
}

func (p *instrumentedPlatform) CreateInputRequest(ctx context.Context, sessionID string, params InputRequestParams) (*InputRequest, error) {
	return p.inner.CreateInputRequest(ctx, sessionID, params)
}

func (p *instrumentedPlatform) GetInputRequest(ctx context.Context, id string) (*InputRequest, error) {
	return p.inner.GetInputRequest(ctx, id)
}

func (p *instrumentedPlatform) CreateSinkItems(ctx context.Context, items []SinkItem) ([]SinkItem, error) {
	created, err := p.inner.CreateSinkItems(ctx, items)
	if err == nil {
		p.metrics.RecordSinkItems(ctx, p.agentID, len(created))
	}
	return created, err
}
