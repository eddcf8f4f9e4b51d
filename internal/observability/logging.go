package observability

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger handed to every component. Request
// scoped loggers come from WithContext.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
	Sync() error
}

// Field is a structured log field.
type Field = zap.Field

// Field constructors.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Error    = zap.Error
	Any      = zap.Any
	Duration = zap.Duration
)

// Component tags log lines with the emitting component.
func Component(name string) Field {
	return zap.String("component", name)
}

// LogConfig selects the level, encoding and destination of the process
// logger. Empty fields fall back to info, json and stdout.
type LogConfig struct {
	Level  string
	Format string
	Output string

	// ServiceName and Environment are attached to every entry when set.
	ServiceName string
	Environment string
}

// NewLogger builds the process logger.
func NewLogger(cfg LogConfig) (Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	out := zapcore.Lock(os.Stdout)
	if cfg.Output == "stderr" {
		out = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), out, level)
	logger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	if cfg.ServiceName != "" {
		logger = logger.With(String("service", cfg.ServiceName))
	}
	if cfg.Environment != "" {
		logger = logger.With(String("environment", cfg.Environment))
	}
	return &zapLogger{logger: logger}, nil
}

// newEncoder returns the console encoder for "console" and JSON otherwise.
// Entries carry ISO8601 timestamps and lowercase levels.
func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// NewLoggerFromZap wraps an existing zap logger, such as one built on a
// zaptest/observer core.
func NewLoggerFromZap(logger *zap.Logger) Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapLogger{logger: logger}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return &zapLogger{logger: zap.NewNop()}
}

type zapLogger struct {
	logger *zap.Logger
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field) { l.logger.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field) { l.logger.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.logger.Fatal(msg, fields...) }
func (l *zapLogger) Sync() error { return l.logger.Sync() }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

// WithContext adds the request, trace and span ids found in ctx. The
// receiver is returned unchanged when ctx carries none.
func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}

	var fields []Field
	for _, k := range contextFields {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, String(string(k), v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
)

// contextFields lists the context values copied onto scoped loggers, in
// field order.
var contextFields = []contextKey{requestIDKey, traceIDKey, spanIDKey}

func valueOf(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the inbound request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id of ctx, or "".
func RequestIDFromContext(ctx context.Context) string { return valueOf(ctx, requestIDKey) }

// ContextWithTraceID stores a trace id for logging.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace id of ctx, or "".
func TraceIDFromContext(ctx context.Context) string { return valueOf(ctx, traceIDKey) }

// ContextWithSpanID stores a span id for logging.
func ContextWithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// SpanIDFromContext returns the span id of ctx, or "".
func SpanIDFromContext(ctx context.Context) string { return valueOf(ctx, spanIDKey) }
