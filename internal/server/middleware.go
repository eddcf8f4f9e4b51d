package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/integrationgw/internal/observability"
)

const (
	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"

	// unmatchedRoute labels requests that matched no route.
	unmatchedRoute = "unmatched"
)

// securityHeaders are set on every response.
var securityHeaders = map[string]string{
	"Strict-Transport-Security":         "max-age=15552000; includeSubDomains",
	"X-Content-Type-Options":            "nosniff",
	"X-Frame-Options":                   "SAMEORIGIN",
	"X-DNS-Prefetch-Control":            "off",
	"X-Download-Options":                "noopen",
	"X-Permitted-Cross-Domain-Policies": "none",
	"Referrer-Policy":                   "no-referrer",
	"Content-Security-Policy":           "default-src 'self'",
}

// requestID assigns the request id, honouring an inbound X-Request-ID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(observability.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// tracing starts a server span continuing the inbound trace context.
func tracing(tracer *observability.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracer == nil {
			c.Next()
			return
		}

		ctx := observability.ExtractTraceContext(c.Request.Context(), c.Request.Header)
		ctx, span := tracer.StartSpan(ctx, c.Request.Method+" "+route(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("url.path", c.Request.URL.Path),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(observability.ContextWithSpan(ctx, span))
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// securityHeadersMiddleware sets the security headers before the handler
// writes the response.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for name, value := range securityHeaders {
			h.Set(name, value)
		}
		c.Next()
	}
}

// bodyLimit caps the request body size. Zero disables the limit.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// requestLogging logs a "call" entry before and a "response" entry after
// the handler. Failed requests are logged at error level.
func requestLogging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithContext(c.Request.Context())
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("url", c.Request.URL.RequestURI()),
			observability.String("path", c.Request.URL.Path),
		}
		log.Info("call", append(fields, observability.String("type", "call"))...)

		start := time.Now()
		c.Next()

		fields = append(fields,
			observability.String("type", "response"),
			observability.Int("statusCode", c.Writer.Status()),
			observability.Int64("ellapsedTimeInMilli", time.Since(start).Milliseconds()),
		)
		if len(c.Errors) > 0 {
			log.Error("response", append(fields, observability.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("response", fields...)
	}
}

// recovery turns a panic into a 500 error body.
func recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				logger.WithContext(c.Request.Context()).Error("panic recovered",
					observability.Error(err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
				)
				if span := trace.SpanFromContext(c.Request.Context()); span.IsRecording() {
					span.RecordError(err)
				}
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorBody(c, http.StatusInternalServerError, ""))
			}
		}()
		c.Next()
	}
}

// requestMetrics records inbound request counts and durations.
func requestMetrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordRequest(c.Request.Method, route(c), c.Writer.Status(), time.Since(start))
	}
}

func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return unmatchedRoute
}
