package scheduler

import (
	"context"
	"time"

	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"
)

// ClaimSweeper resolves every expired claim it can find, returning how many
// it handled.
type ClaimSweeper interface {
	SweepExpiredClaims(ctx context.Context, batch int) (int, error)
}

// ClaimSweepDispatcher periodically sweeps for expired claims whose per-lead
// expiry task was lost or never enqueued.
type ClaimSweepDispatcher struct {
	sweeper  ClaimSweeper
	interval time.Duration
	log      *logger.Logger
}

func NewClaimSweepDispatcher(cfg config.RoutingConfig, sweeper ClaimSweeper, log *logger.Logger) *ClaimSweepDispatcher {
	interval := cfg.GetClaimSweepInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	return &ClaimSweepDispatcher{sweeper: sweeper, interval: interval, log: log}
}

func (d *ClaimSweepDispatcher) Run(ctx context.Context) {
	if d == nil || d.sweeper == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		resolved, err := d.sweeper.SweepExpiredClaims(ctx, 100)
		if err != nil {
			d.log.Warn("claim sweep failed", "error", err)
			continue
		}
		if resolved > 0 {
			d.log.Info("claim sweep resolved expired claims", "count", resolved)
		}
	}
}
