package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
	"github.com/openfoodnetwork/ofn-backend/pkg/migrate"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/registry"
	"github.com/openfoodnetwork/ofn-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	replay := flag.String("replay", "", "move a dead-lettered event id back to the outbox and exit")
	listDLQ := flag.Int("list-dlq", 0, "print the newest N dead-lettered events and exit")
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

	dlq := outbox.NewDLQRepository(dbClient.DB())
	switch {
	case *replay != "":
		fatalIf(logg, "replay dlq event", replayEvent(ctx, logg, dlq, *replay))
		logg.Info(logg.WithField(ctx, "event_id", *replay), "event handed back to the outbox")
		return
	case *listDLQ > 0:
		fatalIf(logg, "list dlq", printDLQ(ctx, dlq, *listDLQ))
		return
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	fatalIf(logg, "bootstrap pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	fatalIf(logg, "build event registry", err)

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: dlq,
		Metrics:       metrics.NewOutboxPublisherMetrics(prometheus.DefaultRegisterer),
	})
	fatalIf(logg, "create outbox publisher", err)

	metrics.ServeInBackground(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg)
	logg.Info(logg.WithField(ctx, "topics", eventRegistry.Topics()), "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fatalIf(logg, "run outbox publisher", err)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func replayEvent(ctx context.Context, logg *logger.Logger, dlq *outbox.DLQRepository, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", raw, err)
	}
	entry, err := dlq.FindByEventID(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return outbox.ErrNotDeadLettered
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"event_id":     id.String(),
			"event_type":   string(entry.EventType),
			"error_reason": string(entry.ErrorReason),
			"attempts":     entry.AttemptCount,
		}), "replaying dead-lettered event")
	}
	return dlq.Replay(ctx, id)
}

func printDLQ(ctx context.Context, dlq *outbox.DLQRepository, limit int) error {
	entries, err := dlq.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		msg := ""
		if e.ErrorMessage != nil {
			msg = *e.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.FailedAt.Format(time.RFC3339), e.EventID, e.EventType, e.ErrorReason, msg)
	}
	return nil
}

func fatalIf(logg *logger.Logger, action string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to "+action, err)
	os.Exit(1)
}
