package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Log exporters selectable in Settings.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// instrumentationName identifies ttclient's logs in OpenTelemetry backends.
const instrumentationName = "github.com/ttnews/ttclient"

// Settings configures the logging pipeline.
type Settings struct {
	Level  slog.Level
	Format string // text|json
	// Exporter additionally ships logs through OpenTelemetry; ExporterNone or "" disables it.
	Exporter string
	// Output receives human-readable logs. Defaults to os.Stderr so command output stays clean.
	Output io.Writer
}

// Instrument installs the default slog logger and the W3C trace context
// propagator used on outgoing requests. The returned function flushes and
// stops any OpenTelemetry exporter; it is safe to call when none was set up.
func Instrument(ctx context.Context, s Settings) (func(context.Context) error, error) {
	out := s.Output
	if out == nil {
		out = os.Stderr
	}

	handler, err := newStdoutHandler(out, s.Level, s.Format)
	if err != nil {
		return nil, err
	}

	shutdown := func(context.Context) error { return nil }

	provider, err := newLoggerProvider(ctx, s.Exporter, s.Level)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		handler = newFanoutHandler(handler, newOTelHandler(provider))
		shutdown = provider.Shutdown
	}

	slog.SetDefault(slog.New(newTraceContextHandler(handler)))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return shutdown, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(out io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text", "":
		handler = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLoggerProvider builds an OpenTelemetry logger provider for exporter, or
// returns nil when export is disabled. Records below level are dropped before export.
func newLoggerProvider(ctx context.Context, exporter string, level slog.Level) (*sdklog.LoggerProvider, error) {
	var (
		exp sdklog.Exporter
		err error
	)
	switch strings.ToLower(exporter) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err = stdoutlog.New()
	case ExporterOTLPGRPC:
		// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
		exp, err = otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		exp, err = otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-grpc, otlp-http)", exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s log exporter: %w", exporter, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exp), minSeverity(level))
	return sdklog.NewLoggerProvider(sdklog.WithProcessor(processor)), nil
}

// newOTelHandler bridges slog records into provider.
func newOTelHandler(provider otellog.LoggerProvider) slog.Handler {
	return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))
}

func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

// fanoutHandler sends each record to every handler that accepts its level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: handlers}
}
