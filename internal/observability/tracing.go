// Package observability wires OpenTelemetry trace export.
//
// Spans travel over OTLP/HTTP to a local collector or agent sidecar,
// which owns authentication and forwarding to whatever backend is in
// use. Export is best effort: a missing collector must never take the
// server down, so setup degrades to a warning and spans are dropped.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// DefaultEndpoint is the conventional OTLP/HTTP port on localhost.
const DefaultEndpoint = "localhost:4318"

// defaultServiceName tags spans when the config leaves the name empty.
const defaultServiceName = "resourceiq"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port (default: localhost:4318).
	Endpoint string
	// Environment is the deployment environment tag (dev, staging, production).
	Environment string
	// ServiceName identifies this service in the tracing backend.
	ServiceName string
}

// Setup builds an OTLP/HTTP exporter and installs a batching tracer
// provider as the global one, so otelhttp middleware and manual
// tracers pick it up without further wiring. The returned shutdown
// function flushes pending spans.
//
// An unreachable collector does not fail Setup: the batch processor
// retries and drops in the background. Only a broken configuration
// (a malformed endpoint) downgrades tracing to a no-op, with a warning.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	// Collector runs next to the service; TLS terminates there.
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("building otlp exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}
