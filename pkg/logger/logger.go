package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger *zap.Logger

var (
	serviceName = "default"
	sessionID   = ""
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// SetSession помечает все строки лога идентификатором текущего запуска.
func SetSession(id string) {
	sessionID = id
}

// Init собирает production-логгер (JSON) с нужным уровнем и регистрирует его глобально.
// Возвращает тот же логгер, чтобы его можно было отдать в fx и раздавать компонентам.
func Init(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	fields := []zap.Field{zap.String("service", serviceName)}
	if sessionID != "" {
		fields = append(fields, zap.String("session", sessionID))
	}
	l := base.With(fields...)

	InfoLogger = l
	return l, nil
}

// L возвращает глобальный логгер или no-op, если Init ещё не вызывался.
func L() *zap.Logger {
	if InfoLogger == nil {
		return zap.NewNop()
	}
	return InfoLogger
}

// Errorf: printf-обёртка для мест без собственного логгера.
func Errorf(format string, args ...interface{}) {
	L().Error(fmt.Sprintf(format, args...))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
