package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var root zerolog.Logger

const (
	LOG_INFO  = "info"
	LOG_DEBUG = "debug"
	LOG_WARN  = "warn"
	LOG_ERROR = "error"
)

func init() {
	// Default to silent mode so CLI output stays clean
	SetSilentMode(true)
}

// SetSilentMode configures whether logging should be silent or output to stderr
func SetSilentMode(silent bool) {
	var output io.Writer
	if silent {
		output = io.Discard
	} else {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	root = zerolog.New(output).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// New returns a logger instance
func New() zerolog.Logger {
	return root
}

// Component returns a logger tagged with a component name so transport,
// auth and session lines can be told apart at debug level
func Component(name string) zerolog.Logger {
	return root.With().Str("component", name).Logger()
}

// SetLevel sets the global log level
func SetLevel(level string) {
	switch level {
	case LOG_DEBUG:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case LOG_INFO:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case LOG_WARN:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case LOG_ERROR:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
