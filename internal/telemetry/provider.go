package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// globalProvider holds the current tracer provider
	globalProvider trace.TracerProvider
	// globalShutdown holds the shutdown function for the provider
	globalShutdown func(context.Context) error
	// providerMu protects access to global provider state
	providerMu sync.RWMutex
)

// createResource describes this process to the collector
func createResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithTelemetrySDK(),
	)
}

// newExporter builds the OTLP/HTTP exporter for cfg.Endpoint
func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// InitProvider initializes the OpenTelemetry tracer provider
// Returns a shutdown function and any initialization error
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providerMu.Lock()
	defer providerMu.Unlock()

	// If tracing is disabled, use noop provider
	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		globalShutdown = func(context.Context) error { return nil }
		otel.SetTracerProvider(globalProvider)
		return globalShutdown, nil
	}

	res, err := createResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}

	if cfg.Endpoint != "" {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(
			exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	otel.SetTracerProvider(tp)

	globalShutdown = func(shutdownCtx context.Context) error {
		return tp.Shutdown(shutdownCtx)
	}
	return globalShutdown, nil
}

// Shutdown flushes and stops the tracer provider, if one was initialized
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	shutdown := globalShutdown
	providerMu.RUnlock()

	if shutdown != nil {
		return shutdown(ctx)
	}
	return nil
}

// GetTracerProvider returns the current global tracer provider
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}

// setProvider replaces the global provider; tests use it to install a recorder
func setProvider(tp trace.TracerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = tp
}
