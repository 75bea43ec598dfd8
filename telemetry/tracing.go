// Package telemetry holds the poller's Prometheus metrics, correlation IDs and
// OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName scopes every span the service starts.
const TracerName = "github.com/onnwee/streamwatch"

// TracingConfig describes the OTLP exporter and what the service reports about itself.
type TracingConfig struct {
	// Endpoint is the OTLP/gRPC collector (OTEL_EXPORTER_OTLP_ENDPOINT). Empty disables tracing.
	Endpoint       string
	ServiceVersion string
	// SampleRatio is the fraction of root spans kept; children follow their parent.
	SampleRatio float64
	// WatchlistBackend and CheckInterval are attached to the resource so traces
	// from differently configured deployments can be told apart.
	WatchlistBackend string
	CheckInterval    time.Duration
}

func (c TracingConfig) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

func (c TracingConfig) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName("streamwatch"),
		semconv.ServiceVersion(c.ServiceVersion),
	}
	if c.WatchlistBackend != "" {
		attrs = append(attrs, attribute.String("streamwatch.watchlist_backend", c.WatchlistBackend))
	}
	if c.CheckInterval > 0 {
		attrs = append(attrs, attribute.String("streamwatch.check_interval", c.CheckInterval.String()))
	}
	return attrs
}

// InitTracing installs the global tracer provider. With no endpoint it leaves
// the no-op provider in place and returns a no-op shutdown.
func InitTracing(cfg TracingConfig) (func(), error) {
	if cfg.Endpoint == "" {
		slog.Info("tracing disabled: OTEL_EXPORTER_OTLP_ENDPOINT not set")
		return func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(cfg.attributes()...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown tracer provider", slog.Any("err", err))
		}
	}, nil
}

// StartSpan starts a span named "<component>.<op>" carrying the correlation ID from ctx.
func StartSpan(ctx context.Context, component, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	attrs = append(attrs, attribute.String("streamwatch.component", component))
	return otel.Tracer(TracerName).Start(ctx, component+"."+op, trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err; nil is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// SetSpanHTTPStatus records the response status on span and marks 4xx/5xx as errors.
func SetSpanHTTPStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	}
}
