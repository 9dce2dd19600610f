package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estate_portal_backend/internal/crm"
	crmrepo "estate_portal_backend/internal/crm/repository"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	apphttp "estate_portal_backend/internal/http"
	"estate_portal_backend/internal/http/router"
	"estate_portal_backend/internal/notification"
	"estate_portal_backend/internal/notification/sse"
	"estate_portal_backend/internal/scheduler"
	"estate_portal_backend/platform/config"
	"estate_portal_backend/platform/db"
	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"
	"estate_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New(prometheus.DefaultRegisterer)

	sender, err := newSender(ctx, cfg, pool, appMetrics, log)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	routeQueue, closeQueue := initRouteQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	sseService := sse.New(log)
	defer sseService.Close()

	notificationModule := notification.New(pool, log)
	notificationModule.SetSSE(sseService)
	notificationModule.RegisterHandlers(eventBus)

	crmDeps := crm.Deps{
		Store:     crmrepo.New(pool),
		Sender:    sender,
		InApp:     notificationModule.InAppService(),
		Bus:       eventBus,
		Metrics:   appMetrics,
		Log:       log,
		Validator: val,
		Settings:  crm.SettingsFromConfig(cfg),
	}
	if routeQueue != nil {
		crmDeps.RouteQueue = routeQueue
	}
	crmModule := crm.New(crmDeps)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Metrics:  appMetrics,
		Gatherer: prometheus.DefaultGatherer,
		Modules: []apphttp.Module{
			crmModule,
			notificationModule,
		},
	}

	engine := router.New(app)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Open SSE streams would otherwise hold Shutdown until the deadline.
		sseService.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// newSender builds the configured provider and wraps it with the email log.
func newSender(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics, log *logger.Logger) (email.Sender, error) {
	provider, err := email.NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	from := email.Address{Name: cfg.GetEmailFromName(), Email: cfg.GetEmailFromAddress()}
	log.Info("email provider initialized", "provider", provider.Name())
	return email.NewLoggingSender(
		email.NewProviderSender(provider, from, cfg.GetEmailTimeout()),
		email.NewLogRepository(pool),
		m,
		log,
	), nil
}

func initRouteQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; failed routing is left on the unroutable queue")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize route queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
