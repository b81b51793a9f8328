package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

var zapLevels = map[LogLevel]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
}

// LogFormat represents the output format for logs
type LogFormat string

const (
	// JSONFormat writes one JSON object per entry.
	JSONFormat LogFormat = "json"
	// TextFormat writes zap's console encoding.
	TextFormat LogFormat = "text"
)

// Config holds configuration for the logger
type Config struct {
	Level  LogLevel
	Format LogFormat
	// Output receives the entries. Nil means stdout.
	Output io.Writer
	// Fields are attached to every entry, typically the service name and environment.
	Fields []any
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{Level: InfoLevel, Format: JSONFormat}
}

// ZapLogger is the Logger used by the engine, backed by a zap sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// NewZapLogger creates a logger writing cfg.Format entries at cfg.Level and above.
// An unknown level falls back to info.
func NewZapLogger(cfg Config) (*ZapLogger, error) {
	level, ok := zapLevels[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case JSONFormat:
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	case TextFormat, "":
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	var out io.Writer = os.Stdout
	if cfg.Output != nil {
		out = cfg.Output
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	sugar := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	if len(cfg.Fields) > 0 {
		sugar = sugar.With(cfg.Fields...)
	}
	return &ZapLogger{sugar: sugar}, nil
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }

func (l *ZapLogger) Info(msg string, args ...any) { l.sugar.Infow(msg, args...) }

func (l *ZapLogger) Warn(msg string, args ...any) { l.sugar.Warnw(msg, args...) }

func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

// With returns a child logger adding args to every entry.
func (l *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(args...)}
}

// WithContext returns a child logger carrying the correlation fields stored in ctx,
// such as the context and transaction ids of the engine.
func (l *ZapLogger) WithContext(ctx context.Context) Logger {
	if fields := FieldsFromContext(ctx); len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}

// Sync flushes buffered entries. Call it before exiting.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// ParseLogLevel converts a case-insensitive level name to a LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return "", fmt.Errorf("invalid log level: %s", level)
	}
}

// ParseLogFormat converts a case-insensitive format name to a LogFormat.
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return JSONFormat, nil
	case "text", "console":
		return TextFormat, nil
	default:
		return "", fmt.Errorf("invalid log format: %s", format)
	}
}

// NewNop returns a ZapLogger that discards every entry.
func NewNop() *ZapLogger {
	return &ZapLogger{sugar: zap.NewNop().Sugar()}
}
