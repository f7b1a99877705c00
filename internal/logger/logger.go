package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables to configure the log destination and level.
const (
	envLogPath  = "RETRO_BADGE_LOG"
	envLogLevel = "RETRO_BADGE_LOG_LEVEL"
)

var (
	base          = zap.NewNop()
	std           = base.Sugar()
	logFile       *os.File
	isInitialized bool
)

// InitFromEnv initializes the logger using RETRO_BADGE_LOG, or defaultPath
// when it is unset. A path of "-" logs to stdout.
func InitFromEnv(defaultPath string) error {
	path := os.Getenv(envLogPath)
	if path == "" {
		path = defaultPath
	}
	return Init(path, os.Getenv(envLogLevel))
}

// Init initializes the logger to write to the provided file path.
// It creates parent directories if needed and opens the file in append mode.
func Init(path, level string) error {
	if isInitialized {
		return nil
	}
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	var sink zapcore.WriteSyncer
	if path == "" || path == "-" {
		sink = zapcore.Lock(os.Stdout)
	} else {
		if err := ensureParentDir(path); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		sink = zapcore.AddSync(f)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, lvl)

	base = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	std = base.Sugar()
	isInitialized = true
	return nil
}

// Close flushes buffered entries and closes the log file, if open.
func Close() error {
	_ = base.Sync()
	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// L returns the structured logger.
func L() *zap.Logger { return base }

// With returns a sugared logger tagged with a component name.
func With(component string) *zap.SugaredLogger {
	return base.WithOptions(zap.AddCallerSkip(-1)).Sugar().With("component", component)
}

// Debugf logs verbose diagnostics.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { std.Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { std.Errorf(format, args...) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
