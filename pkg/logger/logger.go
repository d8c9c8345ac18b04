// Package logger builds the process-wide zap logger: JSON or console lines on stdout,
// optionally mirrored to a size-rotated file.
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var Log = zap.NewNop()

type Config struct {
	Level string `mapstructure:"level"`
	// Format is FormatJSON or FormatConsole; empty means JSON.
	Format string `mapstructure:"format"`
	// Service and Instance are attached to every entry.
	Service  string `mapstructure:"service"`
	Instance string `mapstructure:"instance"`

	// Filename enables the rotated file output; empty logs to stdout only.
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ParseLevel accepts zap level names in any case.
func ParseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return l, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func New(cfg *Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	enc, err := getEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(enc, getLogWriter(cfg), level)
	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	var fields []zap.Field
	if cfg.Service != "" {
		fields = append(fields, zap.String("service", cfg.Service))
	}
	if cfg.Instance != "" {
		fields = append(fields, zap.String("instance", cfg.Instance))
	}
	return l.With(fields...), nil
}

// InitLogger replaces Log and the zap globals. Log is left untouched on error.
func InitLogger(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}

	Log = l
	zap.ReplaceGlobals(Log)
	return nil
}

func getEncoder(format string) (zapcore.Encoder, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(format) {
	case "", FormatJSON:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(encoderConfig), nil
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func getLogWriter(cfg *Config) zapcore.WriteSyncer {
	consoleSyncer := zapcore.AddSync(os.Stdout)
	if cfg.Filename == "" {
		return consoleSyncer
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	// Settlement bursts log several lines per payment.
	buffered := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(rotated),
		Size:          256 * 1024,
		FlushInterval: 5 * time.Second,
	}
	return zapcore.NewMultiWriteSyncer(consoleSyncer, buffered)
}

// Sync flushes buffered entries, including the file buffer.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
