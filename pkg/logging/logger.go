// Package logging configures the global zerolog logger of the dog photo proxy.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a configured level name.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// levels maps accepted names, aliases included, to zerolog levels.
var levels = map[string]struct {
	name  LogLevel
	level zerolog.Level
}{
	"debug":   {LevelDebug, zerolog.DebugLevel},
	"info":    {LevelInfo, zerolog.InfoLevel},
	"warn":    {LevelWarn, zerolog.WarnLevel},
	"warning": {LevelWarn, zerolog.WarnLevel},
	"error":   {LevelError, zerolog.ErrorLevel},
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written
	Level LogLevel

	// Pretty switches from JSON lines to the console writer
	Pretty bool

	// Output defaults to os.Stderr
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup installs a logger built from cfg as the global zerolog logger and
// returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, NoColor: true}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ParseLevel converts a configured level name such as "warning" into a
// LogLevel. Unknown names fall back to info.
func ParseLevel(name string) LogLevel {
	if l, ok := levels[normalize(name)]; ok {
		return l.name
	}
	return LevelInfo
}

func parseLevel(level LogLevel) zerolog.Level {
	if l, ok := levels[normalize(string(level))]; ok {
		return l.level
	}
	return zerolog.InfoLevel
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Level guidelines
//
// Debug: cache hits and misses with key and ttl, upstream "breed not found"
// answers, one access log line per HTTP request.
//
// Info: saved photos, database and cache readiness, startup and shutdown.
//
// Warn: cache backend errors (the request falls through to upstream),
// upstream network, server and payload errors, failed readiness probes.
//
// Error: persistence failures and handler errors answered with 500.
//
// Common fields: component, endpoint, status_code, error_class, key, ttl,
// photo_id, request_id.
