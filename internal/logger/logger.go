package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	log  *zap.Logger
	once sync.Once
)

// Init builds the process-wide zap logger. Safe to call more than once.
func Init() {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// a logger must always exist
			l = zap.NewNop()
		}
		log = l
	})
}

func logger() *zap.Logger {
	if log == nil {
		Init()
	}
	return log
}

func fieldsToZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return zf
}

func Info(msg string, fields map[string]any) {
	logger().Info(msg, fieldsToZap(fields)...)
}

func Warn(msg string, fields map[string]any) {
	logger().Warn(msg, fieldsToZap(fields)...)
}

func Error(msg string, fields map[string]any) {
	logger().Error(msg, fieldsToZap(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	logger().Error(msg, fieldsToZap(fields)...)
	_ = logger().Sync()
	os.Exit(1)
}
