// Package logger is the process-wide structured logger: a sugared zap logger
// writing JSON, teed into OpenTelemetry when telemetry is running. Every
// helper takes the caller's context so entries carry the active trace.
package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/gabapcia/dappkit/internal/pkg/telemetry"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const scope = "github.com/gabapcia/dappkit"

var (
	// logger discards everything until Init runs, so packages can log
	// before the process is configured.
	logger = zap.NewNop().Sugar()

	initOnce sync.Once
)

type config struct {
	level  string    // debug, info, warn, error, panic or fatal
	output io.Writer // destination of the JSON core
}

// Option configures Init.
type Option func(*config)

// WithLevel sets the minimum level. Default: "info".
func WithLevel(l string) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithOutput sends JSON entries to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.output = w
	}
}

// Init builds the global logger. Only the first successful call takes
// effect. When telemetry.LoggerProvider is set, entries are also exported
// through the otelzap bridge, so telemetry.Init has to run first.
func Init(opts ...Option) error {
	cfg := config{level: "info", output: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		encoder := zap.NewProductionEncoderConfig()
		encoder.EncodeTime = zapcore.ISO8601TimeEncoder

		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.AddSync(cfg.output), level)
		if lp := telemetry.LoggerProvider(); lp != nil {
			core = zapcore.NewTee(core, otelzap.NewCore(scope, otelzap.WithLoggerProvider(lp)))
		}

		logger = zap.New(core).Sugar()
	})

	return nil
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() error {
	return logger.Sync()
}

// withTrace appends the ids of the span in ctx, if any.
func withTrace(ctx context.Context, keysAndValues []any) []any {
	if ctx == nil {
		return keysAndValues
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return keysAndValues
	}

	return append(keysAndValues, "trace.id", sc.TraceID().String(), "span.id", sc.SpanID().String())
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Debugw(msg, withTrace(ctx, keysAndValues)...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Infow(msg, withTrace(ctx, keysAndValues)...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Warnw(msg, withTrace(ctx, keysAndValues)...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Errorw(msg, withTrace(ctx, keysAndValues)...)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Fatalw(msg, withTrace(ctx, keysAndValues)...)
}
