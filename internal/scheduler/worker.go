package scheduler

import (
	"context"
	"fmt"

	"estate_portal_backend/platform/apperr"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker processes CRM sweep and routing tasks from the asynq queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	jobs   Jobs
	locker Locker
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, jobs Jobs, locker Locker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(jobs, locker, log)
	w.server = server
	return w, nil
}

func newWorker(jobs Jobs, locker Locker, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:    mux,
		jobs:   jobs,
		locker: locker,
		log:    log,
	}

	for _, taskType := range sweepTasks {
		mux.HandleFunc(taskType, w.handleSweep)
	}
	mux.HandleFunc(TaskLeadRoute, w.handleLeadRoute)
	return w
}

func (w *Worker) handleSweep(ctx context.Context, task *asynq.Task) error {
	return runSweep(ctx, w.locker, w.log, task.Type(), w.jobs.sweep(task.Type()))
}

// handleLeadRoute retries routing for a lead captured while routing failed.
// Leads that were routed or removed in the meantime are dropped without retry.
func (w *Worker) handleLeadRoute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadRoutePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	leadID := uuid.MustParse(payload.LeadID)

	if w.jobs.RouteLead == nil {
		return fmt.Errorf("no routing bound to %s", TaskLeadRoute)
	}

	err = w.jobs.RouteLead(ctx, leadID)
	if err == nil {
		w.log.Info("deferred routing completed", "leadId", leadID)
		return nil
	}

	switch apperr.GetKind(err) {
	case apperr.KindConflict:
		w.log.Info("deferred routing no longer needed", "leadId", leadID, "reason", err.Error())
		return nil
	case apperr.KindNotFound, apperr.KindValidation:
		w.log.Warn("deferred routing dropped", "leadId", leadID, "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	default:
		return err
	}
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
