package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

// TracerConfig describes where database spans are exported.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string
	// SampleRate is the fraction of root traces kept, between 0 and 1.
	SampleRate float64
	Enabled    bool
}

func (c TracerConfig) validate() error {
	switch {
	case c.ServiceName == "":
		return errors.New("service name is required")
	case c.Endpoint == "":
		return errors.New("OTLP endpoint is required")
	case c.SampleRate < 0 || c.SampleRate > 1:
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}

// TracerProvider owns the OpenTelemetry provider the database spans are recorded on.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	enabled  bool
}

// ProviderOption customizes NewTracerProvider.
type ProviderOption func(*[]sdktrace.SpanProcessor)

// WithSpanProcessor adds a processor next to the OTLP exporter, for instance a
// tracetest.SpanRecorder. A disabled provider with processors is still installed globally.
func WithSpanProcessor(processor sdktrace.SpanProcessor) ProviderOption {
	return func(p *[]sdktrace.SpanProcessor) { *p = append(*p, processor) }
}

// NewTracerProvider builds the provider described by cfg and installs it globally.
//
// With tracing disabled the provider only feeds the processors passed as options and is left
// uninstalled when there are none, so StartDatabaseSpan stays a no-op.
func NewTracerProvider(ctx context.Context, cfg TracerConfig, opts ...ProviderOption) (*TracerProvider, error) {
	var processors []sdktrace.SpanProcessor
	for _, opt := range opts {
		opt(&processors)
	}
	sdkOpts := make([]sdktrace.TracerProviderOption, 0, len(processors)+3)
	for _, p := range processors {
		sdkOpts = append(sdkOpts, sdktrace.WithSpanProcessor(p))
	}

	if !cfg.Enabled {
		provider := sdktrace.NewTracerProvider(sdkOpts...)
		if len(processors) > 0 {
			otel.SetTracerProvider(provider)
		}
		return &TracerProvider{provider: provider}, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	exporter, err := newExporter(ctx, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sdkOpts = append(sdkOpts,
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	provider := sdktrace.NewTracerProvider(sdkOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &TracerProvider{provider: provider, enabled: true}, nil
}

func newExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}
	return exporter, nil
}

func newResource(ctx context.Context, cfg TracerConfig) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("create trace resource: %w", err)
	}
	return res, nil
}

// Enabled reports whether spans are exported to a collector.
func (tp *TracerProvider) Enabled() bool { return tp.enabled }

// Tracer returns a tracer for the given instrumentation scope.
func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.provider.Tracer(name)
}

// Shutdown flushes pending spans and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := tp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// ForceFlush exports the spans still buffered.
func (tp *TracerProvider) ForceFlush(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	if err := tp.provider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flush tracer provider: %w", err)
	}
	return nil
}
