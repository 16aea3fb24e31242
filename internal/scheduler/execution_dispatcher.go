package scheduler

import (
	"context"
	"time"

	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"
)

// ExecutionDispatcher marks ripe action plan executions due and publishes
// their events, in batches.
type ExecutionDispatcher interface {
	DispatchDue(ctx context.Context, batch int) (int, error)
}

// ExecutionDispatchLoop drives the ExecutionDispatcher on a fixed interval.
type ExecutionDispatchLoop struct {
	dispatcher ExecutionDispatcher
	interval   time.Duration
	batch      int
	log        *logger.Logger
}

func NewExecutionDispatchLoop(cfg config.RoutingConfig, dispatcher ExecutionDispatcher, log *logger.Logger) *ExecutionDispatchLoop {
	interval := cfg.GetExecutionDispatchInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batch := cfg.GetExecutionDispatchBatch()
	if batch <= 0 {
		batch = 100
	}
	return &ExecutionDispatchLoop{dispatcher: dispatcher, interval: interval, batch: batch, log: log}
}

func (l *ExecutionDispatchLoop) Run(ctx context.Context) {
	if l == nil || l.dispatcher == nil {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		dispatched, err := l.dispatcher.DispatchDue(ctx, l.batch)
		if err != nil {
			l.log.Warn("execution dispatch failed", "error", err)
			continue
		}
		if dispatched > 0 {
			l.log.Info("executions dispatched", "count", dispatched)
		}
	}
}
