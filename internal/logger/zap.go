package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dev-tams/cachesweep/internal/config"
)

type Config struct {
	Level      string
	LogDir     string
	MaxSize    int  // megabytes
	MaxBackups int  // number of backups
	MaxAge     int  // days
	Compress   bool // compress old files
	Console    bool // also write to Stderr
	Stderr     io.Writer
}

func FromConfig(c config.LogConfig) Config {
	return Config{
		Level:      c.Level,
		LogDir:     c.Dir,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
		Console:    c.Console,
	}
}

// NewLogger builds a JSON logger. With LogDir set, entries go to rotated
// service.log and error.log files; without it they go to stderr.
func NewLogger(cfg Config) (*zap.Logger, error) {
	levelText := cfg.Level
	if levelText == "" {
		levelText = "info"
	}
	level, err := zapcore.ParseLevel(levelText)
	if err != nil {
		return nil, fmt.Errorf("can't parse log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var cores []zapcore.Core

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("can't create log directory: %w", err)
		}

		serviceLogWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "service.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		errorLogWriter := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "error.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}

		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(serviceLogWriter), level),
			zapcore.NewCore(encoder.Clone(), zapcore.AddSync(errorLogWriter), zapcore.ErrorLevel),
		)
	}

	if cfg.LogDir == "" || cfg.Console {
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.Lock(zapcore.AddSync(stderr)), level))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}
