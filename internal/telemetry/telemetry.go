// Package telemetry initializes OpenTelemetry tracing and metrics for the
// issuance and verification pipelines.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown releases tracer/meter provider resources.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers. If
// endpoint is empty, OTEL is disabled and a no-op shutdown is returned; the
// tracer/meter obtained via Tracer/Meter remain safe to use in that case,
// they simply record nothing.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return shutdown, nil
}

// Tracer returns the global tracer for the given instrumentation scope.
func Tracer(name string) trace.Tracer { return otel.GetTracerProvider().Tracer(name) }

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter { return otel.GetMeterProvider().Meter(name) }

// PipelineMetrics holds the counters an Issuer increments around the
// issuance and verification pipelines.
type PipelineMetrics struct {
	Issued       metric.Int64Counter
	IssueFailed  metric.Int64Counter
	Verified     metric.Int64Counter
	VerifyFailed metric.Int64Counter
	ChecksFailed metric.Int64Counter // failed individual Outcome checks, labeled by "check"
}

// NewPipelineMetrics registers the issuance/verification counters against
// the named meter. Safe to call even when telemetry is disabled — the
// no-op meter returns no-op instruments.
func NewPipelineMetrics(meterName string) (PipelineMetrics, error) {
	m := Meter(meterName)

	issued, err := m.Int64Counter("aip.checkpoints.issued",
		metric.WithDescription("checkpoints issued successfully"))
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("telemetry: create issued counter: %w", err)
	}
	issueFailed, err := m.Int64Counter("aip.checkpoints.issue_failed",
		metric.WithDescription("checkpoint issuance attempts that failed"))
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("telemetry: create issue_failed counter: %w", err)
	}
	verified, err := m.Int64Counter("aip.certificates.verified",
		metric.WithDescription("certificates whose verification outcome was fully valid"))
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("telemetry: create verified counter: %w", err)
	}
	verifyFailed, err := m.Int64Counter("aip.certificates.verify_failed",
		metric.WithDescription("certificates with at least one failed verification check"))
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("telemetry: create verify_failed counter: %w", err)
	}
	checksFailed, err := m.Int64Counter("aip.certificates.check_failed",
		metric.WithDescription("individual verification checks that failed, labeled by check"))
	if err != nil {
		return PipelineMetrics{}, fmt.Errorf("telemetry: create check_failed counter: %w", err)
	}

	return PipelineMetrics{
		Issued:       issued,
		IssueFailed:  issueFailed,
		Verified:     verified,
		VerifyFailed: verifyFailed,
		ChecksFailed: checksFailed,
	}, nil
}
