// Package logging builds the process logger and logs failures at the severity
// their kind calls for.
package logging

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/memimg/internal/platform/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap logger at the given level ("debug", "info", "warn",
// "error"). Development loggers print human-readable console output.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// LogFailure logs err at Error when it is a system failure and at Warn when
// it is an application failure.
func LogFailure(logger *zap.Logger, err error, fields ...zap.Field) {
	if logger == nil || err == nil {
		return
	}
	fields = append(fields, FailureFields(err)...)
	if apperrors.IsApplication(err) {
		logger.Warn(err.Error(), fields...)
		return
	}
	logger.Error(err.Error(), fields...)
}

// FailureFields describes err as structured fields.
func FailureFields(err error) []zap.Field {
	if err == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("failure_kind", string(apperrors.KindOf(err))),
		zap.String("failure_code", string(apperrors.CodeOf(err))),
	}
	if failure, ok := apperrors.As(err); ok && len(failure.Metadata) > 0 {
		fields = append(fields, zap.Any("failure_metadata", failure.Metadata))
	}
	return fields
}
