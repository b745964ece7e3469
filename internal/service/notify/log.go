package notify

import (
	"context"

	xlogger "NewsSignal/pkg/logger"
)

// LogSink writes alerts to the service log. Always succeeds.
type LogSink struct {
	logger *xlogger.Logger
}

func NewLogSink(logger *xlogger.Logger) *LogSink {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, message string) error {
	s.logger.Info("notification", xlogger.String("message", message))
	return nil
}
