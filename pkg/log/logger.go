package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New builds the service logger. Local runs get a human console writer at
// debug level; everywhere else emits machine JSON at info.
func New(service, env string) Logger {
	level := zerolog.InfoLevel
	var out io.Writer = os.Stdout
	if env == "local" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
}

func With(logger Logger, fields Fields) Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}
