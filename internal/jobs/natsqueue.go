package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	natsclient "github.com/autoline-ai/handoff-platform/internal/nats"
	"github.com/autoline-ai/handoff-platform/pkg/logger"
	"github.com/autoline-ai/handoff-platform/pkg/metrics"
)

const (
	// StreamName is the name of the background task stream.
	StreamName = "TASKS"

	// SubjectPrefix is the prefix for all task subjects.
	SubjectPrefix = "tasks"

	consumerName = "task-workers"
)

// NATSQueue is a JetStream-backed work queue with an in-process worker pool.
// Delayed tasks are held on a timer and published at their deadline; because
// handlers no-op on stale state, a timer lost to a restart only delays the
// work until the sweeper catches it.
type NATSQueue struct {
	client  *natsclient.Client
	logger  *logger.Logger
	workers int

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	consume jetstream.ConsumeContext
	done    chan struct{}
}

// NewNATSQueue creates the queue and ensures the task stream exists.
func NewNATSQueue(ctx context.Context, client *natsclient.Client, workers int, log *logger.Logger) (*NATSQueue, error) {
	if workers <= 0 {
		workers = 4
	}

	js := client.JetStream()
	_, err := js.Stream(ctx, StreamName)
	if err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.WorkQueuePolicy,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Description: "Background tasks: takeover reversion, analytics recording",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create task stream: %w", err)
		}
	}

	return &NATSQueue{
		client:   client,
		logger:   log.Named("jobs"),
		workers:  workers,
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
	}, nil
}

// TaskSubject returns the subject a task type is published on.
func TaskSubject(taskType string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, taskType)
}

// Register installs the handler for a task type. Must be called before Start.
func (q *NATSQueue) Register(taskType string, handler HandlerFunc) {
	q.mu.Lock()
	q.handlers[taskType] = handler
	q.mu.Unlock()
}

// Enqueue publishes a task for immediate execution.
func (q *NATSQueue) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	_, err := q.client.JetStream().Publish(ctx, TaskSubject(taskType), payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}

// Schedule holds a task on a timer and publishes it at the deadline.
func (q *NATSQueue) Schedule(ctx context.Context, taskType string, payload []byte, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, taskType, payload)
	}

	time.AfterFunc(delay, func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := q.Enqueue(pubCtx, taskType, payload); err != nil {
			q.logger.Error("failed to publish scheduled task",
				zap.String("task_type", taskType),
				zap.Error(err),
			)
		}
	})
	return nil
}

// Start creates the durable consumer and begins dispatching to workers.
func (q *NATSQueue) Start(ctx context.Context) error {
	js := q.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: q.workers,
	})
	if err != nil {
		return fmt.Errorf("failed to create task consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming tasks: %w", err)
	}
	q.consume = cc

	go q.reportDepth()

	q.logger.Info("task workers started", zap.Int("workers", q.workers))
	return nil
}

func (q *NATSQueue) reportDepth() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			stream, err := q.client.JetStream().Stream(ctx, StreamName)
			if err == nil {
				if info, err := stream.Info(ctx); err == nil {
					metrics.JobQueueDepth.Set(float64(info.State.Msgs))
				}
			}
			cancel()
		}
	}
}

func (q *NATSQueue) dispatch(msg jetstream.Msg) {
	taskType := strings.TrimPrefix(msg.Subject(), SubjectPrefix+".")

	q.mu.RLock()
	handler, ok := q.handlers[taskType]
	q.mu.RUnlock()

	if !ok {
		q.logger.Warn("no handler for task", zap.String("task_type", taskType))
		_ = msg.Term()
		metrics.JobsTotal.WithLabelValues(taskType, "unhandled").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := handler(ctx, msg.Data()); err != nil {
		q.logger.Warn("task failed, will redeliver",
			zap.String("task_type", taskType),
			zap.Error(err),
		)
		_ = msg.Nak()
		metrics.JobsTotal.WithLabelValues(taskType, "failed").Inc()
		return
	}

	_ = msg.Ack()
	metrics.JobsTotal.WithLabelValues(taskType, "ok").Inc()
}

// Stop halts consumption. Scheduled timers that fire afterwards publish into
// the stream and are picked up on the next start.
func (q *NATSQueue) Stop() {
	close(q.done)
	if q.consume != nil {
		q.consume.Stop()
	}
}
