package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	scopeCLI      = "github.com/felixgeelhaar/pipescope/internal/cmd"
	scopeAnalysis = "github.com/felixgeelhaar/pipescope/internal/analysis"
)

func tracer(scope string) trace.Tracer {
	return GetTracerProvider().Tracer(scope)
}

// StartCommandSpan opens the root span of one CLI invocation, named
// command.<name>. Callers end it when the command returns.
func StartCommandSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer(scopeCLI).Start(ctx, "command."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("command", name),
			attribute.String("component", "cli"),
		),
	)
}

// StartAnalysisSpan opens the span covering one pipeline analysis
func StartAnalysisSpan(ctx context.Context, pipeline, provider string, jobs int) (context.Context, trace.Span) {
	return tracer(scopeAnalysis).Start(ctx, "analysis", trace.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("provider", provider),
		attribute.Int("jobs", jobs),
	))
}

// StartPassSpan opens a child span for one analysis pass
func StartPassSpan(ctx context.Context, pass string) (context.Context, trace.Span) {
	return tracer(scopeAnalysis).Start(ctx, "pass."+pass, trace.WithAttributes(attribute.String("pass", pass)))
}

// RecordSuccess sets attrs and an Ok status
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError marks span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
