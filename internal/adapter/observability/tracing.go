// Package observability provides logging, metrics, and tracing.
//
// The harness emits a span per scenario step and per outgoing request so a
// run can be lined up with the application's own traces.
package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
)

const tracerName = "github.com/fairyhunter13/detector-gadget-e2e"

// SetupTracing configures OTEL tracing if endpoint provided. Returns shutdown func.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
	))
	if err != nil {
		return nil, err
	}

	// Harness runs are short and low volume; keep every span.
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing configured", slog.String("endpoint", cfg.OTLPEndpoint))
	return tp.Shutdown, nil
}

// StartStep opens a span for a scenario step.
func StartStep(ctx context.Context, runID, scenario, step string) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, scenario+"/"+step, oteltrace.WithAttributes(
		attribute.String("harness.run_id", runID),
		attribute.String("harness.scenario", scenario),
		attribute.String("harness.step", step),
	))
}
