package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var globalMeterProvider *sdkmetric.MeterProvider

// InitMetrics initializes OpenTelemetry metrics with Prometheus export.
// The exporter registers against the default Prometheus registry, so the
// HTTP layer only needs to mount promhttp.Handler().
func InitMetrics(serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	globalMeterProvider = provider
	return provider, nil
}

// GetMeter returns a meter from the current global meter provider.
// Resolution is deferred to call time so tests can install their own provider.
func GetMeter(name string) metric.Meter {
	return otel.Meter(name)
}

// PipelineMetrics holds the instruments recorded around agent runs.
type PipelineMetrics struct {
	runCounter    metric.Int64Counter
	runDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	tokenCounter  metric.Int64Counter
	sinkCounter   metric.Int64Counter
}

// NewPipelineMetrics creates the run instruments on the named meter.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := GetMeter("relayhq.agents")

	runCounter, err := meter.Int64Counter(
		"agents.runs",
		metric.WithDescription("Agent runs by terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram(
		"agents.run.duration",
		metric.WithDescription("End-to-end run duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"agents.stage.duration",
		metric.WithDescription("Per-stage duration within a run"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage duration histogram: %w", err)
	}

	tokenCounter, err := meter.Int64Counter(
		"agents.llm.tokens",
		metric.WithDescription("Language model tokens consumed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	sinkCounter, err := meter.Int64Counter(
		"agents.sink.items",
		metric.WithDescription("Sink items written"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink counter: %w", err)
	}

	return &PipelineMetrics{
		runCounter:    runCounter,
		runDuration:   runDuration,
		stageDuration: stageDuration,
		tokenCounter:  tokenCounter,
		sinkCounter:   sinkCounter,
	}, nil
}

// RecordRun records one finished run with its terminal status and duration.
// Status values: completed, failed, skipped.
func (p *PipelineMetrics) RecordRun(ctx context.Context, agentID, status string, elapsed time.Duration) {
	if p == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.String("status", status),
	)
	p.runCounter.Add(ctx, 1, attrs)
	p.runDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
}

// RecordStage records the duration of one pipeline stage.
func (p *PipelineMetrics) RecordStage(ctx context.Context, agentID, stage string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("agent", agentID),
		attribute.String("stage", stage),
	))
}

// RecordTokens records language model token usage for one call.
func (p *PipelineMetrics) RecordTokens(ctx context.Context, provider string, prompt, completion int64) {
	if p == nil {
		return
	}
	if prompt > 0 {
		p.tokenCounter.Add(ctx, prompt, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "prompt"),
		))
	}
	if completion > 0 {
		p.tokenCounter.Add(ctx, completion, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", "completion"),
		))
	}
}

// RecordSinkItems records a bulk sink write.
func (p *PipelineMetrics) RecordSinkItems(ctx context.Context, agentID string, count int) {
	if p == nil || count <= 0 {
		return
	}
	p.sinkCounter.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("agent", agentID),
	))
}

// ShutdownMetrics flushes and stops the global meter provider.
func ShutdownMetrics(ctx context.Context) error {
	if globalMeterProvider != nil {
		return globalMeterProvider.Shutdown(ctx)
	}
	return nil
}
