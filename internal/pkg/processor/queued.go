package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskhost/internal/pkg/config"
	"taskhost/internal/pkg/errorsx"
	"taskhost/internal/pkg/logctx"
	"taskhost/internal/pkg/queue"
	"taskhost/internal/pkg/retry"
	"taskhost/internal/pkg/telemetry"
)

// Hooks are optional extension points around each queue message
type Hooks[A any] struct {
	// Before runs after conversion and before Setup. Returning an error
	// abandons the message; return ErrMessageCancelled to cancel it.
	Before func(ctx context.Context, msg queue.Message, arg A) error

	// After runs once the unit of work finished, with its outcome
	After func(ctx context.Context, msg queue.Message, arg A, err error)
}

// QueueOptions configure a queue-driven processor
type QueueOptions[A any] struct {
	Converter Converter[A]

	// Policy decides the wait between checks; bound to the execution context
	// at construction. Nil uses an adaptive policy targeting SleepInterval.
	Policy PeekPolicy
	Hooks  Hooks[A]
}

// queueTask unifies argument and result tasks for the queue loop
type queueTask[A any] interface {
	Setup(ctx context.Context, ec *ExecutionContext) error
	run(ctx context.Context, arg A) (response string, ok bool, err error)
	task() any
}

type argumentTask[A any] struct{ t ArgumentTask[A] }

func (a argumentTask[A]) Setup(ctx context.Context, ec *ExecutionContext) error {
	return a.t.Setup(ctx, ec)
}

func (a argumentTask[A]) run(ctx context.Context, arg A) (string, bool, error) {
	return "", false, a.t.Run(ctx, arg)
}

func (a argumentTask[A]) task() any { return a.t }

type resultTask[A, R any] struct {
	t      ResultTask[A, R]
	encode Encoder[R]
}

func (r resultTask[A, R]) Setup(ctx context.Context, ec *ExecutionContext) error {
	return r.t.Setup(ctx, ec)
}

func (r resultTask[A, R]) run(ctx context.Context, arg A) (string, bool, error) {
	res, err := r.t.Run(ctx, arg)
	if err != nil {
		return "", false, err
	}
	body, err := r.encode(res)
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

func (r resultTask[A, R]) task() any { return r.t }

// queued pulls messages from a request queue and runs one task per message
type queued[A any] struct {
	p        *Processor
	settings QueueSettings
	responds bool
	newTask  func() queueTask[A]
	convert  Converter[A]
	hooks    Hooks[A]
	policy   PeekPolicy
	adaptive *AdaptivePolicy
	request  queue.Queue
	response queue.Queue
	cached   []queue.Message
}

// NewQueue creates a single-queue processor: each message of the request
// queue is converted and handed to a fresh task, then deleted on success.
func NewQueue[A any](opts Options, factory Factory[ArgumentTask[A]], qo QueueOptions[A]) (*Processor, error) {
	if factory == nil {
		return nil, errorsx.WrapConfiguration(errors.New("task factory is required"))
	}
	q, err := newQueued(opts, qo, false)
	if err != nil {
		return nil, err
	}
	q.newTask = func() queueTask[A] { return argumentTask[A]{t: factory()} }
	return newProcessor(config.KindSingleQueue, opts, q)
}

// NewResultQueue creates a dual-queue processor: like NewQueue, but each
// task result is encoded and put on the response queue before the request
// message is deleted.
func NewResultQueue[A, R any](opts Options, factory Factory[ResultTask[A, R]], encode Encoder[R], qo QueueOptions[A]) (*Processor, error) {
	if factory == nil {
		return nil, errorsx.WrapConfiguration(errors.New("task factory is required"))
	}
	if encode == nil {
		return nil, errorsx.WrapConfiguration(errors.New("result encoder is required"))
	}
	q, err := newQueued(opts, qo, true)
	if err != nil {
		return nil, err
	}
	q.newTask = func() queueTask[A] { return resultTask[A, R]{t: factory(), encode: encode} }
	return newProcessor(config.KindDualQueue, opts, q)
}

func newQueued[A any](opts Options, qo QueueOptions[A], responds bool) (*queued[A], error) {
	if qo.Converter == nil {
		return nil, errorsx.WrapConfiguration(errors.New("message converter is required"))
	}
	settings, err := DecodeQueueSettings(opts.Properties)
	if err != nil {
		return nil, errorsx.WrapConfiguration(fmt.Errorf("processor %q: %w", opts.Name, err))
	}
	if responds && settings.ResponseQueue == "" {
		return nil, errorsx.WrapConfiguration(fmt.Errorf("processor %q: response_queue is required", opts.Name))
	}
	return &queued[A]{
		settings: settings,
		responds: responds,
		convert:  qo.Converter,
		hooks:    qo.Hooks,
		policy:   qo.Policy,
	}, nil
}

// bind resolves the queues and binds the peek policy. Unknown queues are
// configuration errors.
func (q *queued[A]) bind(p *Processor) error {
	q.p = p
	req, err := p.ec.Queue(q.settings.RequestQueue)
	if err != nil {
		return err
	}
	q.request = req

	if q.responds {
		resp, err := p.ec.Queue(q.settings.ResponseQueue)
		if err != nil {
			return err
		}
		q.response = resp
	}

	if q.policy != nil {
		q.policy.Bind(p.ec)
	} else {
		q.adaptive = NewAdaptivePolicy(DefaultAdaptiveMin, DefaultAdaptiveMax, p.settings.SleepInterval)
	}
	q.cached = nil
	return nil
}

func (q *queued[A]) start(time.Time) {
	q.cached = nil
}

// hasWork peeks, or with SkipPeek fetches a batch and keeps it for execute
func (q *queued[A]) hasWork(ctx context.Context) bool {
	if len(q.cached) > 0 {
		return true
	}
	if q.settings.SkipPeek {
		msgs, err := q.fetch(ctx)
		if err != nil {
			q.p.report(ctx, "fetch failed", err)
			return false
		}
		q.cached = msgs
		return len(msgs) > 0
	}

	msgs, err := q.request.Peek(ctx, 1)
	if err != nil {
		q.p.report(ctx, "peek failed", err)
		return false
	}
	return len(msgs) > 0
}

func (q *queued[A]) fetch(ctx context.Context) ([]queue.Message, error) {
	return q.request.Fetch(ctx, q.settings.BatchSize, q.settings.VisibilityTimeout)
}

func (q *queued[A]) execute(ctx context.Context) {
	batch := q.cached
	q.cached = nil
	if len(batch) == 0 {
		msgs, err := q.fetch(ctx)
		if err != nil {
			q.p.report(ctx, "fetch failed", err)
			return
		}
		batch = msgs
	}

	for _, msg := range batch {
		if q.p.stopping(ctx) {
			return
		}
		if q.poisoned(msg) {
			q.drop(ctx, msg)
			continue
		}
		q.handle(ctx, msg)
	}
}

func (q *queued[A]) poisoned(msg queue.Message) bool {
	return q.settings.MaxDequeueCount > 0 && msg.DequeueCount > q.settings.MaxDequeueCount
}

// drop deletes a message that exceeded the dequeue ceiling without running it
func (q *queued[A]) drop(ctx context.Context, msg queue.Message) {
	err := q.request.Delete(ctx, msg)
	q.p.sink.Log(telemetry.EventPoisoning,
		fmt.Sprintf("%s: poisoning message %s dropped after %d dequeues", q.p.label, msg.ID, msg.DequeueCount),
		err)
}

// handle runs one message as a unit of work. The message is deleted only
// when the unit succeeds (and its response, if any, was enqueued);
// otherwise it reappears after the visibility timeout.
func (q *queued[A]) handle(ctx context.Context, msg queue.Message) {
	ctx = logctx.WithMessageID(ctx, msg.ID)

	var (
		t        queueTask[A]
		arg      A
		response string
		responds bool
	)
	err := q.p.runUnit(ctx,
		func(ctx context.Context) error {
			t = q.newTask()
			a, err := q.convert(msg.Body)
			if err != nil {
				return err
			}
			arg = a
			if q.hooks.Before != nil {
				if err := q.hooks.Before(ctx, msg, arg); err != nil {
					return err
				}
			}
			return t.Setup(ctx, q.p.ec)
		},
		func(ctx context.Context) error {
			var err error
			response, responds, err = t.run(ctx, arg)
			return err
		},
		func() {
			if t != nil {
				q.p.disposeTask(ctx, t.task())
			}
		},
	)
	if errors.Is(err, errStopRequested) {
		return
	}
	if q.hooks.After != nil {
		_ = q.p.guard(ctx, func() error {
			q.hooks.After(ctx, msg, arg, err)
			return nil
		})
	}
	if err != nil {
		return
	}

	// acknowledge even if cancellation arrived while the task was finishing
	ack := context.WithoutCancel(ctx)
	if responds && q.response != nil {
		err := retry.Run(ack, ackPolicy, func(ctx context.Context) error {
			_, err := q.response.Put(ctx, response, q.settings.ResponseTTL)
			return err
		}, retry.Transient)
		if err != nil {
			q.p.report(ctx, "response enqueue failed for message "+msg.ID, err)
			return
		}
	}
	err = retry.Run(ack, ackPolicy, func(ctx context.Context) error {
		return q.request.Delete(ctx, msg)
	}, ackRetryable)
	if err != nil {
		q.p.report(ctx, "delete failed for message "+msg.ID, err)
	}
}

// ackPolicy retries acknowledgements briefly; a message that still cannot
// be deleted reappears after its visibility timeout
var ackPolicy = retry.ExponentialBackoff(50*time.Millisecond, 400*time.Millisecond, true, 3)

// a stale receipt never becomes valid again
func ackRetryable(err error) bool {
	return retry.Transient(err) && !errors.Is(err, queue.ErrMessageNotFound)
}

func (q *queued[A]) nextDelay(foundWork bool) time.Duration {
	if q.policy != nil {
		return q.policy.NextDelay(foundWork)
	}
	return q.adaptive.NextDelay(foundWork)
}
