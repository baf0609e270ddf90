// Package logging builds the application's logger.
//
// The code base logs through log/slog. The records are written by zerolog,
// which gives us cheap JSON output in production and a readable console
// writer in development. The zerolog logger is built from Config and handed
// to NewSlogLogger; nothing here is stored in a package-level variable, so
// tests can build as many independent loggers as they like.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the log output.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or console.
	Format string
	// Caller adds the file:line of the log call.
	Caller bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns info-level JSON logs on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// NewZerolog builds a zerolog logger from cfg.
func NewZerolog(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	output := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	ctx := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp()
	if cfg.Caller {
		// Skip the slog adapter frames so the caller is the slog call site.
		ctx = ctx.CallerWithSkipFrameCount(5)
	}
	return ctx.Logger()
}

// New returns an *slog.Logger writing through zerolog.
func New(cfg Config) *slog.Logger {
	return NewSlogLogger(NewZerolog(cfg))
}

// ParseLevel maps a level name to zerolog; unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.MessageFieldName = "message"
}
