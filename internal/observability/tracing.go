// Package observability wires OpenTelemetry distributed tracing.
//
// Spans are exported over OTLP HTTP to a local collector or vendor agent
// (e.g. an OpenTelemetry Collector or Datadog Agent with the OTLP receiver
// enabled, typically on localhost:4318). The agent handles authentication,
// buffering and forwarding, so the application never carries backend
// credentials.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultEndpoint is the conventional OTLP HTTP endpoint of a local
// collector/agent.
const DefaultEndpoint = "localhost:4318"

// serviceName identifies this service in trace backends.
const serviceName = "study-assistant"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP host:port. Empty selects DefaultEndpoint.
	Endpoint string

	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string
}

// Setup installs a TracerProvider exporting spans to the configured OTLP
// endpoint and registers it as the global provider, so instrumented code can
// use otel.Tracer directly.
//
// Returns a shutdown function that flushes pending spans. Exporter
// construction failure disables tracing with a warning rather than failing
// startup; the service is fully functional without it.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) func(context.Context) error {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(provider)

	logger.Debug("tracing enabled", "endpoint", endpoint, "environment", cfg.Environment)

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down tracer provider: %w", err)
		}
		return nil
	}
}
