package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProviderConfig configures NewTracerProvider. An empty Endpoint
// disables export entirely and falls back to OTel's built-in no-op
// tracer, matching the ambient config convention used elsewhere in
// this module ("empty disables").
type TracerProviderConfig struct {
	ServiceName string
	Endpoint    string
}

// Shutdown flushes and releases a tracer provider's resources.
type Shutdown func(context.Context) error

// NewTracerProvider builds an OTLP-over-HTTP tracer when cfg.Endpoint
// is set, or returns the package-level no-op tracer otherwise.
func NewTracerProvider(ctx context.Context, cfg TracerProviderConfig) (trace.Tracer, Shutdown, error) {
	if cfg.Endpoint == "" {
		return otel.Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}
