package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfoodnetwork/ofn-backend/internal/cron"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
	"github.com/openfoodnetwork/ofn-backend/pkg/migrate"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single tick and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	fatalIf(logg, "load config", err)
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	fatalIf(logg, "bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	fatalIf(logg, "run dev migrations", migrate.AutoRun(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	fatalIf(logg, "bootstrap redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	fatalIf(logg, "register cron jobs", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronKey("scheduler", "lock"), cfg.Cron.LockTTL)
	fatalIf(logg, "create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	fatalIf(logg, "create cron service", err)

	if *once {
		fatalIf(logg, "run cron tick", service.RunOnce(ctx))
		return
	}

	metrics.ServeInBackground(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg)
	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatalIf(logg, "run cron worker", err)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func fatalIf(logg *logger.Logger, action string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to "+action, err)
	os.Exit(1)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)

	cache, err := invalidation.NewEmitter(outbox.NewService(outboxRepo, logg))
	if err != nil {
		return nil, err
	}
	transitions, err := cron.NewOrderCycleTransitionsJob(cron.OrderCycleTransitionsJobParams{
		Logger:      logg,
		OrderCycles: ordercycles.NewRepository(conn),
		Cache:       cache,
		Tx:          dbClient,
		Watermarks:  redisClient,
		Lookback:    cfg.Cron.Interval,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		Repository:       outboxRepo,
		RetentionDays:    cfg.Cron.OutboxRetentionDays,
		DeadLetters:      outbox.NewDLQRepository(conn),
		DLQRetentionDays: cfg.Cron.DLQRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	for _, job := range []cron.Job{transitions, retention} {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
