package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/autoline-ai/handoff-platform/pkg/logger"
)

// Sweeper periodically runs a catch-up function. It backstops the takeover
// deadline timers: a takeover whose timer was lost (process restart, dropped
// publish) is still released once its deadline passes.
type Sweeper struct {
	cron   *cron.Cron
	logger *logger.Logger
}

// NewSweeper creates a sweeper running fn on the given cron spec
// (e.g. "@every 1m").
func NewSweeper(spec string, fn func(ctx context.Context) error, log *logger.Logger) (*Sweeper, error) {
	c := cron.New()
	sweepLog := log.Named("sweeper")

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			sweepLog.Warn("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}

	return &Sweeper{cron: c, logger: sweepLog}, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
