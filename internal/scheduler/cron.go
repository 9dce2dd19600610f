package scheduler

import (
	"context"
	"time"

	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/logger"

	"github.com/robfig/cron/v3"
)

const cronSweepTimeout = 5 * time.Minute

// CronRunner runs the CRM sweeps in-process when no redis is configured.
type CronRunner struct {
	cron *cron.Cron
	jobs Jobs
	log  *logger.Logger
}

func NewCronRunner(cfg config.SchedulerConfig, jobs Jobs, log *logger.Logger) (*CronRunner, error) {
	cl := cronLogger{log: log}
	r := &CronRunner{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		jobs: jobs,
		log:  log,
	}

	for _, taskType := range sweepTasks {
		spec := scheduleFor(cfg, taskType)
		// Each kind gets its own skip wrapper so a slow sweep only delays itself.
		job := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(r.sweepJob(taskType))
		if _, err := r.cron.AddJob(spec, job); err != nil {
			return nil, err
		}
		log.Info("cron sweep registered", "task", taskType, "schedule", spec)
	}
	return r, nil
}

func (r *CronRunner) sweepJob(taskType string) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cronSweepTimeout)
		defer cancel()
		if err := runSweep(ctx, nil, r.log, taskType, r.jobs.sweep(taskType)); err != nil {
			r.log.Error("cron sweep failed", "task", taskType, "error", err)
		}
	})
}

// Run blocks until ctx is cancelled, then waits for running sweeps to finish.
func (r *CronRunner) Run(ctx context.Context) {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
