package logger

import (
	"os"
	"strings"

	zap "go.uber.org/zap"
	zapcore "go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how the process logs.
type Options struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var (
	base  = zap.NewNop()
	sugar = base.Sugar()
	sink  *lumberjack.Logger
)

// Init initializes the global logger. Verbose forces debug level.
func Init(verbose bool, opts Options) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	writer := zapcore.Lock(os.Stderr)
	if opts.File != "" {
		sink = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		writer = zapcore.AddSync(sink)
	}

	Replace(zap.New(zapcore.NewCore(encoder, writer, level), zap.AddCaller(), zap.AddCallerSkip(1)))
}

// Replace swaps the global logger, mainly for tests.
func Replace(l *zap.Logger) {
	base = l
	sugar = l.Sugar()
	zap.ReplaceGlobals(l)
}

// Close flushes buffered entries and releases the rotating file, if any.
func Close() {
	_ = base.Sync()
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	sugar.Debugw(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	sugar.Infow(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	sugar.Warnw(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	sugar.Errorw(msg, args...)
}
