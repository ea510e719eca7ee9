// Package clog provides the structured logging facade used across the
// C-Star workflow driver. Every subsystem (scheduler jobs, staging,
// external codebase management) logs through a Logger rather than
// touching slog directly, so tests can swap in a NoOpLogger.
package clog

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is the structured logging interface used throughout the module.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level   slog.Level
	Format  Format
	Output  *os.File
	Version string
}

// DefaultConfig returns a default logger configuration: text output to
// stdout at info level, overridable via NewFromEnv.
func DefaultConfig() *Config {
	return &Config{
		Level:   slog.LevelInfo,
		Format:  FormatText,
		Output:  os.Stdout,
		Version: "dev",
	}
}

// NewFromEnv builds a Config from CSTAR_LOG_LEVEL and CSTAR_LOG_FORMAT,
// following the resolution conventions used elsewhere for C-Star env vars
// (see package envvar): an unset or unrecognized value falls back to the
// default rather than erroring.
func NewFromEnv(version string) *Config {
	cfg := DefaultConfig()
	cfg.Version = version

	switch os.Getenv("CSTAR_LOG_FORMAT") {
	case "json":
		cfg.Format = FormatJSON
	case "text", "":
	default:
		cfg.Format = FormatText
	}

	switch os.Getenv("CSTAR_LOG_LEVEL") {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	case "info", "":
	}

	return cfg
}

// New creates a Logger tagged with the "cstar" service name.
func New(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level: config.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	logger := slog.New(handler).With("service", "cstar", "version", config.Version)
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

// WithContext enriches the logger with a job ID carried on the context, if
// present, so a job's whole lifecycle (submit/poll/cancel) logs under one
// correlation key.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if jobID := ctx.Value(ctxKeyJobID); jobID != nil {
		return l.With("job_id", jobID)
	}
	return l
}

type ctxKey string

const ctxKeyJobID ctxKey = "job_id"

// WithJobID returns a context carrying jobID for later retrieval by
// WithContext.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ctxKeyJobID, jobID)
}

// NoOpLogger discards every message; useful for unit tests that don't want
// log output on the record.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...any)          {}
func (NoOpLogger) Info(msg string, args ...any)           {}
func (NoOpLogger) Warn(msg string, args ...any)           {}
func (NoOpLogger) Error(msg string, args ...any)          {}
func (NoOpLogger) With(args ...any) Logger                { return NoOpLogger{} }
func (NoOpLogger) WithContext(ctx context.Context) Logger { return NoOpLogger{} }

// Default is the package-level logger used by packages that don't carry
// their own injected Logger.
var Default = New(DefaultConfig())
