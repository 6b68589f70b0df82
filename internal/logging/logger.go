// Package logging provides leveled, structured logging for the
// bridge, backed by go.uber.org/zap.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors zapcore.Level but keeps callers decoupled from the
// zap import so Config stays a plain value type.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level LogLevel
	// Format selects the zap encoder: "json" for machine-readable
	// logs, anything else (including "") for zap's console encoder.
	Format string
	Output io.Writer
	// Sync forces a Sync() after every write; tests use this so
	// buffered output is visible before assertions run.
	Sync bool
	// NoColor disables the console encoder's level colorization,
	// matching non-TTY output (files, CI logs).
	NoColor bool
}

// DefaultConfig returns a sensible default configuration: info level,
// console-formatted, writing to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger wraps a zap.SugaredLogger with the printf-style surface the
// rest of the bridge calls through logging.Default().
type Logger struct {
	sugar *zap.SugaredLogger
	sync  bool
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger builds a Logger from config, defaulting unset fields.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.NoColor {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), config.Level.zapLevel())
	base := zap.New(core)
	return &Logger{sugar: base.Sugar(), sync: config.Sync}
}

// Default returns the process-wide default logger, creating one on
// first use.
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

// SetDefault replaces the process-wide default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) sweep() {
	if l.sync {
		_ = l.sugar.Sync()
	}
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.sugar.Debugw(msg, kv...)
	l.sweep()
}

func (l *Logger) Info(msg string, kv ...any) {
	l.sugar.Infow(msg, kv...)
	l.sweep()
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.sugar.Warnw(msg, kv...)
	l.sweep()
}

func (l *Logger) Error(msg string, kv ...any) {
	l.sugar.Errorw(msg, kv...)
	l.sweep()
}

// Printf-style logging, used throughout the bridge at call sites that
// already have a formatted message rather than structured fields.
func (l *Logger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
	l.sweep()
}

func (l *Logger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
	l.sweep()
}

func (l *Logger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
	l.sweep()
}

func (l *Logger) Errorf(format string, args ...any) {
	l.sugar.Errorf(format, args...)
	l.sweep()
}

// Printf is kept for compatibility with call sites that log through a
// generic printf-shaped interface.
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// WithJob returns a logger that annotates every entry with job_id,
// for handlers processing a command tied to a specific job.
func (l *Logger) WithJob(jobID uint32) *Logger {
	return &Logger{sugar: l.sugar.With("job_id", jobID), sync: l.sync}
}

// WithEpisode returns a logger annotated with episode_id.
func (l *Logger) WithEpisode(episodeID uint32) *Logger {
	return &Logger{sugar: l.sugar.With("episode_id", episodeID), sync: l.sync}
}

// WithCmd returns a logger annotated with a command id and name.
func (l *Logger) WithCmd(cmd uint16, name string) *Logger {
	return &Logger{sugar: l.sugar.With("cmd", cmd, "cmd_name", name), sync: l.sync}
}

// WithError returns a logger annotated with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{sugar: l.sugar.With("error", err), sync: l.sync}
}

// Global convenience functions delegating to the default logger.
func Debug(msg string, kv ...any) { Default().Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
