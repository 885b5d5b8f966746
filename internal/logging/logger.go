package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel names the environment variable holding the log level.
const EnvLogLevel = "GEMINI_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// GEMINI_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	InitWithWriter(os.Stderr)
}

// InitWithWriter is Init with a custom console destination.
func InitWithWriter(out io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(EnvLogLevel)))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
}

// ParseLevel maps a GEMINI_LOG_LEVEL value to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
