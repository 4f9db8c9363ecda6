package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceContextHandlerAddsTraceContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(provider)
	defer provider.Shutdown(context.Background())

	var buf bytes.Buffer
	baseHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	handler := NewTraceContextHandler(baseHandler)

	logger := slog.New(handler)

	tracer := otel.Tracer("test")
	ctx, span := tracer.Start(context.Background(), "test-span")
	spanContext := span.SpanContext()

	logger.InfoContext(ctx, "run started")
	span.End()

	output := buf.String()
	if !strings.Contains(output, "run started") {
		t.Errorf("Output missing message: %s", output)
	}

	traceID := spanContext.TraceID().String()
	spanID := spanContext.SpanID().String()

	if !strings.Contains(output, traceID) {
		t.Errorf("Output missing trace_id %s: %s", traceID, output)
	}
	if !strings.Contains(output, spanID) {
		t.Errorf("Output missing span_id %s: %s", spanID, output)
	}
}

func TestTraceContextHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	baseHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	handler := NewTraceContextHandler(baseHandler)

	logger := slog.New(handler)

	// Logging outside any span must still succeed, just without trace fields.
	logger.InfoContext(context.Background(), "no active span")

	output := buf.String()
	if !strings.Contains(output, "no active span") {
		t.Errorf("Output missing message: %s", output)
	}
	if strings.Contains(output, "trace_id") {
		t.Errorf("Unexpected trace_id without a span: %s", output)
	}
}

func TestTraceContextHandlerPreservesAttributes(t *testing.T) {
	var buf bytes.Buffer

	baseHandler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	handler := NewTraceContextHandler(baseHandler)

	logger := slog.New(handler)

	logger.Info("stage finished",
		slog.String("stage", "scraping"),
		slog.Int("items", 42),
		slog.Bool("cached", true),
	)

	var logData map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logData); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	if logData["msg"] != "stage finished" {
		t.Errorf("Expected msg='stage finished', got '%v'", logData["msg"])
	}
	if logData["stage"] != "scraping" {
		t.Errorf("Expected stage='scraping', got '%v'", logData["stage"])
	}
	if logData["items"] != float64(42) { // JSON numbers are float64
		t.Errorf("Expected items=42, got '%v'", logData["items"])
	}
	if logData["cached"] != true {
		t.Errorf("Expected cached=true, got '%v'", logData["cached"])
	}
}

func TestTraceContextHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer

	baseHandler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	handler := NewTraceContextHandler(baseHandler)

	logger := slog.New(handler).WithGroup("request")

	logger.Info("dispatch",
		slog.String("method", "POST"),
		slog.String("path", "/agent/run"),
	)

	var logData map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logData); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	requestGroup, ok := logData["request"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected 'request' group in output")
	}

	if requestGroup["method"] != "POST" {
		t.Errorf("Expected method='POST', got '%v'", requestGroup["method"])
	}
	if requestGroup["path"] != "/agent/run" {
		t.Errorf("Expected path='/agent/run', got '%v'", requestGroup["path"])
	}
}

func TestTraceContextHandlerEnabled(t *testing.T) {
	baseHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	handler := NewTraceContextHandler(baseHandler)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Expected Info level to be disabled when base is Warn")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("Expected Warn level to be enabled")
	}
	if !handler.Enabled(context.Background(), slog.LevelError) {
		t.Error("Expected Error level to be enabled")
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestConfigureLogging(t *testing.T) {
	ConfigureLogging(slog.LevelInfo, true, true)

	logger := slog.Default()
	logger.Info("configured")
}

func TestConfigureLoggingWithDifferentModes(t *testing.T) {
	testCases := []struct {
		level      slog.Level
		structured bool
		traceCtx   bool
	}{
		{slog.LevelDebug, false, false},
		{slog.LevelInfo, true, false},
		{slog.LevelWarn, false, true},
		{slog.LevelError, true, true},
	}

	for _, tc := range testCases {
		t.Run("", func(t *testing.T) {
			ConfigureLogging(tc.level, tc.structured, tc.traceCtx)

			logger := slog.Default()
			logger.Log(context.Background(), tc.level, "configured")
		})
	}
}

func TestLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

	logger := Logger("curator")
	logger.Info("session opened")

	var logData map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logData); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	if logData["component"] != "curator" {
		t.Errorf("Expected component='curator', got '%v'", logData["component"])
	}
}
