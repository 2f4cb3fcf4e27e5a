// Package telemetry installs the global OpenTelemetry TracerProvider that
// internal/service's DecisionPipeline spans report against.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes pending spans and stops the TracerProvider installed
// by Setup. Callers should invoke it with a bounded-timeout context during
// graceful shutdown.
type ShutdownFunc func(context.Context) error

// Setup installs a global TracerProvider that batches spans and exports
// them as JSON to w. serviceName/serviceVersion are attached to every span
// via the resource. Pass io.Discard for w to disable trace output while
// still exercising the batching/export pipeline (cmd/policyd does this
// outside --dev and debug-level runs).
func Setup(w io.Writer, serviceName, serviceVersion string) (ShutdownFunc, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
