package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// New builds the process logger for env. Unknown environments log JSON at info.
func New(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var log zerolog.Logger
	switch env {
	case envLocal:
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel)
	case envDev:
		log = zerolog.New(os.Stdout).Level(zerolog.DebugLevel)
	default:
		log = zerolog.New(os.Stdout).Level(zerolog.InfoLevel)
	}

	return log.With().Timestamp().Str("env", env).Logger()
}

type requestIDKey struct{}

// WithRequestID stores the id of the HTTP request being served on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns log tagged with the request id carried by ctx, if any.
func FromContext(ctx context.Context, log zerolog.Logger) *zerolog.Logger {
	if id := RequestID(ctx); id != "" {
		log = log.With().Str("request_id", id).Logger()
	}
	return &log
}
