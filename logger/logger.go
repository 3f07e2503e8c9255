package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const logLevelEnv = "MDL_COMN_LOGLEVEL"

var levels = map[string]zerolog.Level{
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"FATAL": zerolog.FatalLevel,
	"PANIC": zerolog.PanicLevel,
}

func SetupLogging() {
	zerolog.LevelFieldName = "level_name"
	zerolog.TimestampFieldName = "timestamp"
}

// NewLogger returns a JSON logger on stderr tagged with the component name.
func NewLogger(component string) zerolog.Logger {
	return NewLoggerTo(os.Stderr, component)
}

func NewLoggerTo(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).
		With().
		Str("component", component).
		Timestamp().
		Logger().
		Level(levelFromEnv())
}

func levelFromEnv() zerolog.Level {
	name, ok := os.LookupEnv(logLevelEnv)
	if !ok {
		return zerolog.InfoLevel
	}
	level, ok := levels[strings.ToUpper(name)]
	if !ok {
		return zerolog.InfoLevel
	}
	return level
}
