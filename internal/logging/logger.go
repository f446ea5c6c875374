// Package logging provides the runtime's structured logger: a
// Debug/Info/Warn/Error + Printf-style call-site surface, backed by
// zerolog so fields come out structured rather than formatted into a
// single string.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the key=value call-site shape the rest
// of the runtime (reactor, stage, client) already calls into.
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// LogLevel represents the available log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level  LogLevel
	Output io.Writer
	// Pretty switches to zerolog's human-readable console writer, useful
	// for cmd/runtimed's default terminal output; production deployments
	// should leave this false for plain JSON lines.
	Pretty bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
		Pretty: true,
	}
}

// NewLogger creates a new logger
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	if config.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}
	zl := zerolog.New(output).With().Timestamp().Logger().Level(config.Level.zerolog())
	return &Logger{zl: zl, level: config.Level}
}

// Default returns the default logger, creating it if necessary
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// With returns a child logger carrying an additional persistent field, for
// a reactor or stage worker to tag every subsequent line with its id.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger(), level: l.level}
}

func (l *Logger) event(e *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		if key == "" {
			key = "field"
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, args ...any) { l.event(l.zl.Debug(), msg, args) }

func (l *Logger) Info(msg string, args ...any) { l.event(l.zl.Info(), msg, args) }

func (l *Logger) Warn(msg string, args ...any) { l.event(l.zl.Warn(), msg, args) }

func (l *Logger) Error(msg string, args ...any) { l.event(l.zl.Error(), msg, args) }

// Printf-style logging, for call sites that build their own formatted
// string instead of passing key=value pairs.
func (l *Logger) Debugf(format string, args ...any) { l.zl.Debug().Msgf(format, args...) }

func (l *Logger) Infof(format string, args ...any) { l.zl.Info().Msgf(format, args...) }

func (l *Logger) Warnf(format string, args ...any) { l.zl.Warn().Msgf(format, args...) }

func (l *Logger) Errorf(format string, args ...any) { l.zl.Error().Msgf(format, args...) }

// Printf for compatibility with call sites expecting a generic logger.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// Global convenience functions
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
