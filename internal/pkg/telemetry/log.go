package telemetry

import (
	"taskhost/internal/pkg/logger"

	"go.uber.org/zap"
)

// LogSink writes events to the structured logger. Counter updates are ignored.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a sink logging through log
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Log(kind EventKind, message string, err error) {
	fields := []zap.Field{zap.String("event", string(kind))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	switch kind {
	case EventFailed, EventError:
		s.logger.Error(message, fields...)
	case EventInterrupted, EventPoisoning, EventWarning:
		s.logger.Warn(message, fields...)
	case EventProcessed:
		s.logger.Debug(message, fields...)
	default:
		s.logger.Info(message, fields...)
	}
}

func (s *LogSink) Increment(instance string, c Counter)        {}
func (s *LogSink) Set(instance string, c Counter, value int64) {}
