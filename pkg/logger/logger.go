package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VladKovDev/subgate-bot/internal/config"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger every component receives. Fields are zap
// fields so call sites use zap.String, zap.Int64 and friends directly.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
	Named(name string) Logger
	Sync() error
}

type Field = zapcore.Field

var errNoFilePath = errors.New("file_path is required when output is 'file'")

var encoders = map[string]func(zapcore.EncoderConfig) zapcore.Encoder{
	"json":    zapcore.NewJSONEncoder,
	"console": zapcore.NewConsoleEncoder,
}

type logger struct {
	z *zap.Logger
}

// New builds a logger from the logger section of the bot config.
func New(cfg config.LoggerConfig) (Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	newEncoder, ok := encoders[cfg.Format]
	if !ok {
		return nil, fmt.Errorf("invalid log format: %q", cfg.Format)
	}

	sink, fd, err := openSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}

	colored := cfg.EnableColors && cfg.Format == "console" && isTerminal(fd)
	core := zapcore.NewCore(newEncoder(encoderConfig(colored)), sink, level)
	return NewWithCore(core), nil
}

// NewWithCore wraps an already built zap core. Tests pass an observer core here.
func NewWithCore(core zapcore.Core) Logger {
	return logger{zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

func Noop() Logger {
	return logger{zap.NewNop()}
}

func encoderConfig(colored bool) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.SecondsDurationEncoder
	if colored {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// openSink returns the write syncer for cfg.Output and, for the standard
// streams, the file descriptor checked for a terminal.
func openSink(cfg config.LoggerConfig) (zapcore.WriteSyncer, *os.File, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.Lock(os.Stdout), os.Stdout, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, errNoFilePath
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		return zapcore.AddSync(rotated), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown output: %q", cfg.Output)
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (l logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l logger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }
func (l logger) Sync() error                       { return l.z.Sync() }

func (l logger) With(fields ...Field) Logger { return logger{l.z.With(fields...)} }
func (l logger) Named(name string) Logger    { return logger{l.z.Named(name)} }
