package observability

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// otlpRetry is the export retry policy of the OTLP exporter.
var otlpRetry = otlptracegrpc.RetryConfig{
	Enabled:         true,
	InitialInterval: time.Second,
	MaxInterval:     30 * time.Second,
	MaxElapsedTime:  time.Minute,
}

// TracerConfig contains tracing configuration.
type TracerConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	SamplingRate float64
	Enabled      bool
}

// Tracer starts spans for the inbound surface, the shared cache and the
// outbound transport.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer and installs the W3C propagator. A disabled
// tracer uses the global no-op provider; propagation of inbound trace
// headers to upstream services still works.
func NewTracer(cfg TracerConfig) (*Tracer, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.SamplingRate)),
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracegrpc.New(context.Background(),
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(10*time.Second),
			otlptracegrpc.WithReconnectionPeriod(10*time.Second),
			otlptracegrpc.WithRetry(otlpRetry),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// createSampler samples everything at rate 1, nothing at 0, and a ratio of
// root traces in between.
func createSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a span named name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// ContextWithSpan stores the trace and span ids of span in ctx for logging.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	sc := span.SpanContext()
	if sc.HasTraceID() {
		ctx = ContextWithTraceID(ctx, sc.TraceID().String())
	}
	if sc.HasSpanID() {
		ctx = ContextWithSpanID(ctx, sc.SpanID().String())
	}
	return ctx
}

// ExtractTraceContext reads a remote span context from inbound headers.
func ExtractTraceContext(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectTraceContext writes the trace context of ctx into r's headers.
func InjectTraceContext(ctx context.Context, r *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))
}
