// Package logging wraps zerolog behind package-level helpers so engine
// code logs through one configured instance.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the shared instance. Prefer the package-level helpers;
// subsystems that want tagged output use Component.
var Logger zerolog.Logger

// Level aliases zerolog's level type.
type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level that gets written.
	Level Level
	// Output receives log lines. Defaults to os.Stderr.
	Output io.Writer
	// Pretty switches to human-readable console output.
	Pretty bool
	// TimeFormat stamps entries. Defaults to RFC3339.
	TimeFormat string
}

// DefaultConfig returns JSON output to stderr at info level.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Init reconfigures the shared logger. Component loggers created before
// Init keep their old settings, so call it before building subsystems.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	out := cfg.Output
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
}

func init() {
	Init(DefaultConfig())
}

// ParseLevel maps a level name to a Level, case-insensitively.
// Unrecognized names fall back to info.
func ParseLevel(level string) Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with a component name. Engine
// subsystems use it so their log lines are filterable per subsystem.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// With opens a child logger context on the shared instance.
func With() zerolog.Context {
	return Logger.With()
}

func Trace() *zerolog.Event { return Logger.Trace() }
func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

// Fatal logs and then exits the process when the event is sent.
func Fatal() *zerolog.Event { return Logger.Fatal() }
