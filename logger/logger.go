package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	log zerolog.Logger
)

// Init initializes a JSON logger on stderr at the given level.
func Init(level string) (zerolog.Logger, error) {
	return InitWithOptions(level, "", false)
}

// InitWithOptions initializes the logger with the specified options.
// If logFile is empty, logs go to stderr; stdout is reserved for the stdio transport.
// If pretty is true, uses ConsoleWriter for human-readable output (only valid when logFile is empty).
// Level accepts DEBUG, INFO, WARNING/WARN, ERROR and CRITICAL in any case.
func InitWithOptions(level, logFile string, pretty bool) (zerolog.Logger, error) {
	lvl := ParseLevel(level)

	var output io.Writer

	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	default:
		output = os.Stderr
	}

	log = New(output, lvl)

	switch {
	case logFile != "":
		log.Info().Str("path", logFile).Str("level", lvl.String()).Msg("Logger initialized")
	case pretty:
		log.Info().Str("output", "stderr").Str("format", "pretty").Str("level", lvl.String()).Msg("Logger initialized")
	default:
		log.Info().Str("output", "stderr").Str("level", lvl.String()).Msg("Logger initialized")
	}

	return log, nil
}

// New returns a timestamped logger writing to w.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Get returns the logger created by the last Init call.
func Get() zerolog.Logger {
	return log
}

// ParseLevel maps a configured level name to a zerolog level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "critical", "fatal":
		return zerolog.FatalLevel
	case "trace":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
