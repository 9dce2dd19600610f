package scheduler

import (
	"context"
	"fmt"

	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the CRM sweeps on their cron schedules.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			log.Error("periodic enqueue failed", "task", task.Type(), "error", err)
		},
	})

	queue := queueName(cfg)
	for _, taskType := range sweepTasks {
		spec := scheduleFor(cfg, taskType)
		task, err := NewSweepTask(taskType)
		if err != nil {
			return nil, err
		}
		// A sweep that has not started within one interval is superseded by the next.
		entryID, err := scheduler.Register(spec, task, asynq.Queue(queue), asynq.MaxRetry(0))
		if err != nil {
			return nil, fmt.Errorf("register %s on %q: %w", taskType, spec, err)
		}
		log.Info("periodic task registered", "task", taskType, "schedule", spec, "entryId", entryID)
	}

	return &Periodic{scheduler: scheduler, log: log}, nil
}

func scheduleFor(cfg config.SchedulerConfig, taskType string) string {
	if taskType == TaskContactWindow {
		return cfg.GetContactCheckSchedule()
	}
	return cfg.GetEscalationSchedule()
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
