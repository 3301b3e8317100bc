package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/llave-asesoria/fiscal/internal/alerts"
	"github.com/llave-asesoria/fiscal/internal/app"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/clients"
	"github.com/llave-asesoria/fiscal/internal/documents"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/observability"
	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/cache"
	"github.com/llave-asesoria/fiscal/internal/platform/db"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
	"github.com/llave-asesoria/fiscal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("calendar timezone", slog.Any("error", err))
		os.Exit(1)
	}
	catalog, err := obligations.LoadCatalog(cfg.CalendarRulesFile)
	if err != nil {
		logger.Error("load obligation rules", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	calendarService := calendar.NewService(calendar.NewRepository(pool), catalog, loc)
	reconciler := reconcile.NewReconciler(reconcile.NewStore(pool), calendarService, reconcile.Config{
		Concurrency:   cfg.ReconcileConcurrency,
		LookbackYears: cfg.ReconcileLookbackYears,
		WindowAware:   cfg.ReconcileWindowAware,
	})
	filingService := filings.NewService(filings.NewRepository(pool), documents.NewStore(pool))
	scanner := alerts.NewScanner(calendarService, filingService, redisClient, alerts.Config{
		Thresholds: cfg.AlertThresholds,
		DedupeTTL:  cfg.AlertDedupeTTL,
	}, logger)

	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer queue.Close()

	reconcileJob := jobs.NewReconcileJob(reconciler, logger, metrics.Jobs())
	calendarJob := jobs.NewCalendarGenerateJob(calendarService, logger, metrics.Jobs())
	alertsJob := jobs.NewDeadlineAlertsJob(scanner, clients.NewDirectory(pool), queue, logger, metrics.Jobs())

	reconcileTask, err := jobs.NewReconcileTask("")
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	calendarTask, err := jobs.NewCalendarGenerateTask()
	if err != nil {
		logger.Error("build calendar task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskFilingsReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskCalendarGenerate, Handler: calendarJob.Handle},
			{Type: jobs.TaskDeadlineAlerts, Handler: alertsJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CronCalendar, Task: calendarTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CronReconcile, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Unique(time.Hour)}},
			{Spec: cfg.CronAlerts, Task: jobs.NewDeadlineAlertsTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()
	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Metrics:    metrics,
		JobHandler: jobs.NewHandler(inspector, logger),
	})
	admin := &http.Server{
		Addr:              cfg.WorkerAdminAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.WorkerAdminAddr))
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return worker.Run(gctx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
