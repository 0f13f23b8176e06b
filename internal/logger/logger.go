package logger

import (
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Options configures the global logger
type Options struct {
	Debug bool
	// File receives JSON logs in addition to the console (empty = console only)
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init initializes the global logger. Only the first call has an effect.
func Init(opts Options) {
	once.Do(func() {
		log = New(opts)
	})
}

// New builds a logger writing human-readable lines to stderr and, when a
// file is configured, rotated JSON lines to that file.
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	encoderConfig := zap.NewProductionEncoderConfig()
	if opts.Debug {
		level = zapcore.DebugLevel
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// Console core (always present)
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    valueOr(opts.MaxSizeMB, 50),
				MaxBackups: valueOr(opts.MaxBackups, 5),
				MaxAge:     valueOr(opts.MaxAgeDays, 30),
			}),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
}

func valueOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Get returns the global logger
func Get() *zap.Logger {
	Init(Options{})
	return log
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Get().Sync()
}
