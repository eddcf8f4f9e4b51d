// Package observability provides logging, metrics, and tracing for the
// integration layer.
//
// # Logging
//
// Logger is a thin interface over zap. Request-scoped loggers are derived
// with WithContext, which attaches the request id and trace ids stored in
// the context by the HTTP middleware:
//
//	logger := base.WithContext(ctx).With(observability.Component("integration"))
//	logger.Info("outbound call finished", observability.Int("statusCode", 200))
//
// # Metrics
//
// Metrics owns a private Prometheus registry exposed through Handler:
//
//	metrics := observability.NewMetrics("integrationgw")
//	router.GET("/metrics", gin.WrapH(metrics.Handler()))
//
// # Tracing
//
// NewTracer configures an OTLP gRPC exporter when enabled and always
// installs the W3C trace-context propagator used by the outbound transport.
package observability
