// Package logging builds the server's slog logger: a text handler for the
// console or log file, an optional OTel bridge, and per-record context.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// DefaultScope is the OTel instrumentation scope when none is given.
const DefaultScope = "vizserver"

// Options controls where records go.
type Options struct {
	Level string

	// Console receives text output. When both Console and File are nil,
	// os.Stdout is used.
	Console io.Writer
	File    io.Writer

	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider
	Scope    string

	// Context is evaluated for every record, e.g. the live connection count.
	Context ContextProvider
}

// Manager owns the configured logger and the OTel provider used for flushing.
type Manager struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

// NewManager returns a Manager whose Logger is slog.Default until Setup.
func NewManager() *Manager {
	return &Manager{}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup replaces the logger according to opts.
func (m *Manager) Setup(opts Options) {
	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	console := opts.Console
	if console == nil && opts.File == nil {
		console = os.Stdout
	}

	var handlers []slog.Handler
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, handlerOpts))
	}
	if opts.File != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.File, handlerOpts))
	}
	if opts.Provider != nil {
		scope := opts.Scope
		if scope == "" {
			scope = DefaultScope
		}
		handlers = append(handlers, otelslog.NewHandler(scope, otelslog.WithLoggerProvider(opts.Provider)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if opts.Context != nil {
		h = NewContextHandler(h, opts.Context)
	}

	m.provider = opts.Provider
	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", opts.Level)
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *Manager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces pending OTel records out.
func (m *Manager) Flush(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.ForceFlush(ctx)
	}
	return nil
}
