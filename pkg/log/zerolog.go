package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Output formats accepted by Init.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	// FormatCloud emits slog JSON with Cloud Logging field names.
	FormatCloud = "cloud"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string

	// Format is json, console or cloud.
	Format string

	// Caller includes caller file and line number in logs.
	Caller bool

	// Output is the writer for log output. Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

var (
	mu      sync.RWMutex
	current Logger
)

func init() {
	_ = configure(DefaultConfig())
}

// Init configures the global logger and routes library warnings
// (ConvergenceWarning, UndefinedMetricWarning) into it.
// It is safe to call multiple times; subsequent calls reconfigure the logger.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	return configure(cfg)
}

// configure must be called with mu held.
func configure(cfg Config) error {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	var logger Logger
	switch cfg.Format {
	case FormatJSON, FormatConsole:
		logger = newZerolog(cfg, level)
	case FormatCloud:
		logger = NewCloudLogger(cfg.Output, level)
	default:
		return errors.NewValidationError("logging.format", "must be json, console or cloud", cfg.Format)
	}

	current = logger
	warnLogger := logger.With(ComponentKey, "warnings")
	errors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), ErrorTypeKey, fmt.Sprintf("%T", w), "warning", w)
	})
	return nil
}

func newZerolog(cfg Config, level Level) *ZerologLogger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.MessageFieldName = "message"

	output := cfg.Output
	if cfg.Format == FormatConsole {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
		}
	}

	ctx := zerolog.New(output).Level(toZerologLevel(level)).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	zl := ctx.Logger()
	return NewZerologLogger(zl)
}

// ParseLevel converts a configuration string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("logging.level", "must be debug, info, warn or error", level)
	}
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// GetLogger returns the global logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// GetLoggerWithName returns the global logger tagged with a component name.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ComponentKey, name)
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewZerologLogger(zl zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{zl: zl}
}

// Debug implements Logger.Debug.
func (z *ZerologLogger) Debug(msg string, fields ...any) {
	addFields(z.zl.Debug(), fields).Msg(msg)
}

// Info implements Logger.Info.
func (z *ZerologLogger) Info(msg string, fields ...any) {
	addFields(z.zl.Info(), fields).Msg(msg)
}

// Warn implements Logger.Warn.
func (z *ZerologLogger) Warn(msg string, fields ...any) {
	addFields(z.zl.Warn(), fields).Msg(msg)
}

// Error implements Logger.Error. A leading error value is attached with Err.
func (z *ZerologLogger) Error(msg string, fields ...any) {
	e := z.zl.Error()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			e = e.Err(err)
			fields = fields[1:]
		}
	}
	addFields(e, fields).Msg(msg)
}

// With implements Logger.With.
func (z *ZerologLogger) With(fields ...any) Logger {
	ctx := z.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ctx = ctx.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			ctx = ctx.Object(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	zlevel := toZerologLevel(level)
	return zlevel >= z.zl.GetLevel() && zlevel >= zerolog.GlobalLevel()
}

func addFields(e *zerolog.Event, fields []any) *zerolog.Event {
	if e == nil {
		return e
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			if m, ok := v.(zerolog.LogObjectMarshaler); ok {
				e = e.Object(key, m)
			} else {
				e = e.AnErr(key, v)
			}
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case float64:
			e = e.Float64(key, v)
		case bool:
			e = e.Bool(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
