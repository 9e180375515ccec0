package taskhost

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"taskhost/internal/pkg/host"
	"taskhost/internal/pkg/logctx"
	"taskhost/internal/pkg/logger"
	"taskhost/internal/pkg/processor"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/telemetry"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Task names referenced by processor definitions
const (
	TaskHeartbeat = "heartbeat"
	TaskReport    = "report"
	TaskEcho      = "echo"
	TaskUppercase = "uppercase"
)

// TextRequest is the argument of the uppercase task
type TextRequest struct {
	Text string `json:"text"`
}

// TextResponse is the result of the uppercase task
type TextResponse struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// NewTaskRegistry registers the built-in tasks
func NewTaskRegistry(log *logger.Logger, store *telemetry.Store) (*host.Registry, error) {
	log = log.Named("tasks")
	r := host.NewRegistry()

	err := multierr.Combine(
		host.RegisterContinuous(r, TaskHeartbeat, func() processor.Task {
			return &heartbeatTask{logger: log}
		}),
		host.RegisterScheduled(r, TaskReport, func() processor.Task {
			return &reportTask{logger: log, store: store}
		}),
		host.RegisterQueueTask(r, TaskEcho, host.QueueTask[string]{
			Factory: func() processor.ArgumentTask[string] {
				return &echoTask{logger: log}
			},
			Converter: processor.StringConverter,
			Hooks: processor.Hooks[string]{
				Before: skipBlank,
			},
		}),
		host.RegisterResultQueueTask(r, TaskUppercase, host.ResultQueueTask[TextRequest, TextResponse]{
			Argument: "text_request",
			Result:   "text_response",
			Factory: func() processor.ResultTask[TextRequest, TextResponse] {
				return processor.ResultFunc[TextRequest, TextResponse](uppercase)
			},
			Converter: processor.JSONConverter[TextRequest](),
			Encoder:   processor.JSONEncoder[TextResponse](),
		}),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// heartbeatTask logs a line on every run; the message comes from the
// "message" context property
type heartbeatTask struct {
	logger  *logger.Logger
	message string
}

func (t *heartbeatTask) Setup(ctx context.Context, ec *processor.ExecutionContext) error {
	t.message = ec.String("message", "alive")
	return nil
}

func (t *heartbeatTask) Run(ctx context.Context) error {
	t.logger.Info("Heartbeat", append(logctx.Fields(ctx), zap.String("message", t.message))...)
	return nil
}

// reportTask logs the counters of every instance that reported so far
type reportTask struct {
	processor.Base
	logger *logger.Logger
	store  *telemetry.Store
}

func (t *reportTask) Run(ctx context.Context) error {
	if t.store == nil {
		return errors.New("no counter store")
	}
	instances := t.store.Instances()
	for _, id := range instances {
		snap := t.store.Snapshot(id)
		t.logger.Info("Instance report",
			zap.String("instance", id),
			zap.Int64("processed", snap[telemetry.Processed]),
			zap.Int64("failed", snap[telemetry.Failed]),
			zap.Int64("last_duration_ms", snap[telemetry.LastDurationMs]),
		)
	}
	t.logger.Info("Report complete", append(logctx.Fields(ctx), zap.Int("instances", len(instances)))...)
	return nil
}

// echoTask logs every message it receives
type echoTask struct {
	processor.Base
	logger *logger.Logger
}

func (t *echoTask) Run(ctx context.Context, body string) error {
	t.logger.Info("Echo", append(logctx.Fields(ctx), zap.String("body", body))...)
	return nil
}

// skipBlank cancels blank messages before the task runs. A cancelled
// message stays queued, so echo definitions set max_dequeue_count to have
// blanks dropped once they have been seen that many times.
func skipBlank(ctx context.Context, msg queue.Message, body string) error {
	if strings.TrimSpace(body) == "" {
		return processor.ErrMessageCancelled
	}
	return nil
}

func uppercase(ctx context.Context, req TextRequest) (TextResponse, error) {
	if req.Text == "" {
		return TextResponse{}, errors.New("text is required")
	}
	upper := strings.ToUpper(req.Text)
	return TextResponse{Text: upper, Length: utf8.RuneCountInString(upper)}, nil
}
