// Package logging builds the structured loggers used by coordinator components.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `env:"EVENTED_LOG_LEVEL" envDefault:"info"`
	Format string `env:"EVENTED_LOG_FORMAT" envDefault:"text"`
}

// New returns a logger writing to stderr.
func New(cfg Config) (*logrus.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w.
func NewWithWriter(cfg Config, w io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}
	return logger, nil
}

// Discard returns a logger that drops everything. Components use it when no
// logger is configured.
func Discard() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// OrDiscard returns logger, or a discarding logger when logger is nil.
func OrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return Discard()
	}
	return logger
}

type contextKey struct{}

// WithLogger stores a request-scoped logger on ctx.
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the request-scoped logger, or fallback when none is set.
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(logrus.FieldLogger); ok && logger != nil {
			return logger
		}
	}
	return OrDiscard(fallback)
}
