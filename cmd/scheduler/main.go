package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realty_crm_backend/internal/actionplans"
	"realty_crm_backend/internal/email"
	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/notification"
	"realty_crm_backend/internal/routing"
	"realty_crm_backend/internal/scheduler"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender := email.NewSender(cfg, log)

	// Expiry fallback to a group re-broadcasts, which schedules a fresh
	// expiry task, so the worker needs its own client.
	expiryClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize claim expiry client", "error", err)
		panic("failed to initialize claim expiry client: " + err.Error())
	}
	defer func() { _ = expiryClient.Close() }()

	val := validator.New()

	actionPlansModule := actionplans.NewModule(pool, eventBus, val, log)
	routingModule := routing.NewModule(pool, actionPlansModule.Service(), expiryClient, eventBus, val, cfg, log)

	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.SetMemberReader(routingModule.Repository())
	notificationModule.RegisterHandlers(eventBus)

	worker, err := scheduler.NewWorker(cfg, routingModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	sweep := scheduler.NewClaimSweepDispatcher(cfg, routingModule.Service(), log)
	dispatch := scheduler.NewExecutionDispatchLoop(cfg, actionPlansModule.Service(), log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		worker.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		sweep.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		dispatch.Run(groupCtx)
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("scheduler stopped", "error", err)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
