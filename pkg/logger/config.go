package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the configuration for the logger
type Config struct {
	Level         string    `yaml:"level"          json:"level"`
	FilePath      string    `yaml:"file_path"      json:"file_path"`
	Format        string    `yaml:"format"         json:"format"`
	WithTrace     bool      `yaml:"with_trace"     json:"with_trace"`
	EnableConsole bool      `yaml:"enable_console" json:"enable_console"`
	InstantSync   bool      `yaml:"instant_sync"   json:"instant_sync"`
	Console       io.Writer `yaml:"-"              json:"-"`
}

func baseEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// Console output drops the caller and shows a short timestamp.
func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := baseEncoderConfig()
	cfg.NameKey = ""
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = nil
	cfg.CallerKey = ""
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05"))
	}
	return cfg
}

// Initialize sets up the global logger with the given configuration
func Initialize(config Config) error {
	GlobalInstantSync = config.InstantSync

	logLevel := config.Level
	if logLevel == "" {
		logLevel = InfoLogLevel
	}
	GlobalLogLevel = logLevel
	level := getZapLevel(logLevel)

	var cores []zapcore.Core

	if config.EnableConsole {
		out := config.Console
		if out == nil {
			out = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig()),
			zapcore.Lock(zapcore.AddSync(out)),
			level,
		))
	}

	if config.FilePath != "" {
		var encoder zapcore.Encoder
		if config.Format == "json" {
			encoder = zapcore.NewJSONEncoder(baseEncoderConfig())
		} else {
			encoder = zapcore.NewConsoleEncoder(baseEncoderConfig())
		}

		file, err := os.OpenFile(
			config.FilePath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			LogFilePermissions,
		)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		if GlobalLogFile != nil {
			_ = GlobalLogFile.Close()
		}
		GlobalLogFile = file

		// The file always records debug output so failed runs can be inspected.
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.DebugLevel))
	}

	core := zapcore.NewTee(cores...)
	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(2)}
	if config.WithTrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	SetGlobalLogger(&Logger{Logger: zap.New(core, opts...).Named(loggerName)})
	return nil
}

// Close flushes the global logger and closes the log file, if any.
func Close() {
	_ = Get().Sync()
	if GlobalLogFile != nil {
		_ = GlobalLogFile.Close()
		GlobalLogFile = nil
	}
}
