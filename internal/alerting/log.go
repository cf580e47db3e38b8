package alerting

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogAlerter writes alerts to a zap logger at a level matching severity
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log alerter
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// SendAlert logs the alert
func (a *LogAlerter) SendAlert(_ context.Context, alert Alert) error {
	level := zapcore.InfoLevel
	switch alert.Severity {
	case SeverityWarning:
		level = zapcore.WarnLevel
	case SeverityError, SeverityCritical:
		level = zapcore.ErrorLevel
	}

	if ce := a.logger.Check(level, alert.Title); ce != nil {
		ce.Write(
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)),
			zap.String("component", alert.Component),
			zap.String("description", alert.Description),
			zap.Any("metadata", alert.Metadata),
		)
	}
	return nil
}
