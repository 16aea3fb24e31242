package scheduler

import (
	"context"
	"fmt"

	"realty_crm_backend/internal/routing/repository"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ClaimExpirer resolves a single expired claim through its fallback chain.
type ClaimExpirer interface {
	ExpireClaim(ctx context.Context, claim repository.ExpiredClaim) (bool, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	expirer ClaimExpirer
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, expirer ClaimExpirer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		expirer: expirer,
		log:     log,
	}

	mux.HandleFunc(TaskClaimExpiry, w.handleClaimExpiry)

	return w, nil
}

func (w *Worker) handleClaimExpiry(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseClaimExpiryPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}
	orgID, err := uuid.Parse(payload.OrganizationID)
	if err != nil {
		return err
	}
	groupID, err := uuid.Parse(payload.GroupID)
	if err != nil {
		return err
	}

	resolved, err := w.expirer.ExpireClaim(ctx, repository.ExpiredClaim{
		LeadID:         leadID,
		OrganizationID: orgID,
		GroupID:        groupID,
	})
	if err != nil {
		return err
	}
	if !resolved {
		// Someone claimed or re-routed the lead before the task fired.
		w.log.Debug("claim expiry task found nothing to resolve", "leadId", leadID)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
