package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger = zap.NewNop()

// Init configures the process-wide logger. JSON output in production,
// console output when LOG_FORMAT=console. Safe to call more than once.
func Init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if os.Getenv("LOG_FORMAT") == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if level, err := zapcore.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	log = built
}

func Info(event string, fields map[string]interface{}) {
	log.Info(event, zapFields(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	log.Warn(event, zapFields(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	zf := zapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	log.Error(event, zf...)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	log.Info(event, append(zapFields(fields), zap.String("user_id", userID))...)
}

func WarnWithUser(userID, event string, fields map[string]interface{}) {
	log.Warn(event, append(zapFields(fields), zap.String("user_id", userID))...)
}

func zapFields(fields map[string]interface{}) []zap.Field {
	zf := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zf = append(zf, zap.Any(key, value))
	}
	return zf
}
