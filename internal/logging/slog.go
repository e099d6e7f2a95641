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

// Replaced in tests. stdout carries host call replies, so console output
// goes to stderr.
var (
	osStderr io.Writer = os.Stderr
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	logger *slog.Logger

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider

	// gelf receives a JSON copy of every record when set
	gelf io.Writer

	// Dynamic state read on every record. Any may be nil.
	GetMatchName func() string
	GetMatchID   func() uint
	GetTick      func() uint64
	GetMode      func() string
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts the slog level names plus "warning"; anything else is
// info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// SetGELF adds a GELF output on the next Setup. A nil writer removes it.
func (m *SlogManager) SetGELF(w io.Writer) {
	m.gelf = w
}

// Setup (re)builds the logger: a text log to file (stderr when nil), plus
// OTel when provider is set and GELF when SetGELF was called.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	if file == nil {
		file = osStderr
	}
	outputs := []slog.Handler{slog.NewTextHandler(file, opts)}
	if provider != nil {
		outputs = append(outputs, otelslog.NewHandler("capture-server", otelslog.WithLoggerProvider(provider)))
	}
	if m.gelf != nil {
		outputs = append(outputs, newGELFHandler(m.gelf, opts))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(outputs...), m.contextAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

// contextAttrs reports the match being played and the current tick.
func (m *SlogManager) contextAttrs() []slog.Attr {
	var attrs []slog.Attr
	if m.GetMatchName != nil {
		if name := m.GetMatchName(); name != "" {
			attrs = append(attrs, slog.String("match", name))
		}
	}
	if m.GetMatchID != nil {
		if id := m.GetMatchID(); id != 0 {
			attrs = append(attrs, slog.Uint64("matchId", uint64(id)))
		}
	}
	if m.GetTick != nil {
		attrs = append(attrs, slog.Uint64("tick", m.GetTick()))
	}
	if m.GetMode != nil {
		if mode := m.GetMode(); mode != "" {
			attrs = append(attrs, slog.String("mode", mode))
		}
	}
	return attrs
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}

// WriteHostLog records a line the host script asked to log. source names
// the script function that sent it.
func WriteHostLog(logger *slog.Logger, source, level, msg string) {
	if logger == nil {
		return
	}
	logger.Log(context.Background(), parseLevel(level), msg, "source", source, "origin", "host")
}
