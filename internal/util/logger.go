package util

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions configures the rotating file sink.
type LogOptions struct {
	Level      string
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	// Console mirrors log output to stdout.
	Console bool
}

// LogOptionsFromConfig builds LogOptions from the application config.
func LogOptionsFromConfig(cfg *Config) LogOptions {
	return LogOptions{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
		Console:    true,
	}
}

// Logger provides leveled printf-style logging over zap.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
	sink  *lumberjack.Logger
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

// GetLogger returns the default logger instance.
func GetLogger() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(LogOptions{Level: "info", Console: true})
	}
	return defaultLogger
}

// NewLogger creates a logger writing to stdout and, when FilePath is set,
// to a size-rotated file.
func NewLogger(opts LogOptions) *Logger {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	level := zap.NewAtomicLevelAt(ParseLevel(opts.Level))

	var syncers []zapcore.WriteSyncer
	if opts.Console {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	var sink *lumberjack.Logger
	if opts.FilePath != "" {
		if err := EnsureDir(filepath.Dir(opts.FilePath)); err == nil {
			sink = &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    opts.MaxSize,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAge,
				Compress:   opts.Compress,
			}
			syncers = append(syncers, zapcore.AddSync(sink))
		}
	}
	if len(syncers) == 0 {
		syncers = append(syncers, zapcore.AddSync(os.Stderr))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.NewMultiWriteSyncer(syncers...), level)
	return &Logger{sugar: zap.New(core).Sugar(), level: level, sink: sink}
}

// NewLoggerFromCore wraps an existing zap core, typically an observer in tests.
func NewLoggerFromCore(core zapcore.Core) *Logger {
	return &Logger{
		sugar: zap.New(core).Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return NewLoggerFromCore(zapcore.NewNopCore())
}

// Named returns a child logger tagged with the given component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), level: l.level, sink: l.sink}
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// ParseLevel parses a string log level.
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Close flushes buffered entries and closes the log file if open.
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// InitLogger replaces the default logger.
func InitLogger(opts LogOptions) *Logger {
	l := NewLogger(opts)
	mu.Lock()
	old := defaultLogger
	defaultLogger = l
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return l
}
