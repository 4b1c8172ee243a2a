package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes notifications to the application log. Used when Telegram is disabled.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("notify")}
}

// Post logs text at info level.
func (l *Log) Post(_ context.Context, text string) error {
	l.logger.Info("Notification", zap.String("text", text))
	return nil
}
