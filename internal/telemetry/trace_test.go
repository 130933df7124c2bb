package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer creates a test tracer with in-memory exporter
func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	res, err := createResource(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("createResource failed: %v", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	setProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		setProvider(nil)
	})
	return tp, exporter
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartCommandSpan(t *testing.T) {
	_, exporter := setupTestTracer(t)

	ctx := context.Background()
	spanCtx, span := StartCommandSpan(ctx, "analyze")
	if spanCtx == ctx {
		t.Error("expected new context with span, got same context")
	}
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "command.analyze" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "command.analyze")
	}
	if v, ok := attrValue(spans[0].Attributes, "command"); !ok || v.AsString() != "analyze" {
		t.Error("missing 'command' attribute")
	}
	if v, ok := attrValue(spans[0].Attributes, "component"); !ok || v.AsString() != "cli" {
		t.Error("missing 'component' attribute")
	}
}

func TestAnalysisAndPassSpans(t *testing.T) {
	_, exporter := setupTestTracer(t)

	ctx, parent := StartAnalysisSpan(context.Background(), "CI", "github-actions", 3)
	_, pass := StartPassSpan(ctx, "parallelism")
	pass.End()
	parent.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	// Spans are exported in end order.
	passSpan, analysisSpan := spans[0], spans[1]
	if passSpan.Name != "pass.parallelism" {
		t.Errorf("span name = %q", passSpan.Name)
	}
	if analysisSpan.Name != "analysis" {
		t.Errorf("span name = %q", analysisSpan.Name)
	}
	if passSpan.Parent.SpanID() != analysisSpan.SpanContext.SpanID() {
		t.Error("pass span is not a child of the analysis span")
	}
	if v, ok := attrValue(analysisSpan.Attributes, "jobs"); !ok || v.AsInt64() != 3 {
		t.Error("missing 'jobs' attribute")
	}
	if v, ok := attrValue(analysisSpan.Attributes, "provider"); !ok || v.AsString() != "github-actions" {
		t.Error("missing 'provider' attribute")
	}
}

func TestRecordSuccess(t *testing.T) {
	_, exporter := setupTestTracer(t)

	_, span := StartCommandSpan(context.Background(), "scan")
	RecordSuccess(span, attribute.Int("findings", 2))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("status = %v, want Ok", spans[0].Status.Code)
	}
	if v, ok := attrValue(spans[0].Attributes, "findings"); !ok || v.AsInt64() != 2 {
		t.Error("missing 'findings' attribute")
	}
}

func TestRecordError(t *testing.T) {
	_, exporter := setupTestTracer(t)

	_, span := StartCommandSpan(context.Background(), "analyze")
	RecordError(span, errors.New("boom"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "boom" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected an exception event")
	}
}

func TestRecordErrorWithNil(t *testing.T) {
	_, exporter := setupTestTracer(t)

	_, span := StartCommandSpan(context.Background(), "analyze")
	RecordError(span, nil)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("nil error must not set error status")
	}
}

func TestNoopProviderByDefault(t *testing.T) {
	setProvider(nil)
	_, span := StartCommandSpan(context.Background(), "lint")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("expected a non-recording span without an initialized provider")
	}
}
