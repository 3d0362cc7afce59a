// Package jobs provides the asynchronous task-execution runtime: a
// fire-and-forget queue, delayed scheduling, and a periodic sweeper.
package jobs

import (
	"context"
	"time"
)

// Task types handled by the platform.
const (
	// TaskRevertTakeover reverts a chat to AI mode when its takeover times
	// out. At-least-once delivery; the handler is idempotent via a
	// taken_at snapshot check.
	TaskRevertTakeover = "takeover.revert"

	// TaskRecordAnalytics records one analytics event. Duplicate delivery
	// is tolerated by the reporting side.
	TaskRecordAnalytics = "analytics.record"
)

// HandlerFunc processes one task payload. A non-nil error causes redelivery.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Queue submits tasks for asynchronous execution.
type Queue interface {
	// Enqueue submits a task for execution as soon as a worker is free.
	Enqueue(ctx context.Context, taskType string, payload []byte) error

	// Schedule submits a task for execution after delay. Rescheduling does
	// not cancel earlier submissions; handlers must no-op on stale fires.
	Schedule(ctx context.Context, taskType string, payload []byte, delay time.Duration) error
}
