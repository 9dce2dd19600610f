package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estate_portal_backend/internal/crm"
	crmrepo "estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/internal/notification"
	"estate_portal_backend/internal/scheduler"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/db"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "redis", cfg.GetRedisURL() != "")

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
	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	provider, err := email.NewProvider(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}
	sender := email.NewLoggingSender(
		email.NewProviderSender(provider, email.Address{Name: cfg.GetEmailFromName(), Email: cfg.GetEmailFromAddress()}, cfg.GetEmailTimeout()),
		email.NewLogRepository(pool),
		appMetrics,
		log,
	)

	// Sweeps run without SSE here; agents pick up in-app notifications on their next poll.
	notificationModule := notification.New(pool, log)

	crmModule := crm.New(crm.Deps{
		Store:    crmrepo.New(pool),
		Sender:   sender,
		InApp:    notificationModule.InAppService(),
		Bus:      eventBus,
		Metrics:  appMetrics,
		Log:      log,
		Settings: crm.SettingsFromConfig(cfg),
	})
	jobs := scheduler.JobsFromCRM(crmModule)

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.GetSchedulerMetricsAddr(); addr != "" {
		srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("scheduler metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running sweeps in-process with cron")
		runner, err := scheduler.NewCronRunner(cfg, jobs, log)
		if err != nil {
			log.Error("failed to initialize cron runner", "error", err)
			panic("failed to initialize cron runner: " + err.Error())
		}
		g.Go(func() error {
			runner.Run(gctx)
			return nil
		})
	} else {
		startAsynq(gctx, g, cfg, jobs, log)
	}

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
	}
	log.Info("scheduler stopped")
}

// startAsynq runs the periodic enqueuer and the task worker against redis.
func startAsynq(ctx context.Context, g *errgroup.Group, cfg *config.Config, jobs scheduler.Jobs, log *logger.Logger) {
	redisClient, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	lock := scheduler.NewRedisLock(redisClient, 2*cfg.GetAlarmInterval())

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, jobs, lock, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g.Go(func() error {
		periodic.Run(ctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(ctx)
		return redisClient.Close()
	})
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
