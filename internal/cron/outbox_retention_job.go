package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	outboxRetentionEvery       = time.Hour
)

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	Repository    outboxRetentionRepo
	RetentionDays int
	// DeadLetters is optional; without it dead-lettered rows are kept forever.
	DeadLetters      dlqRetentionRepo
	DLQRetentionDays int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows older than the retention
// window, and dead letters older than the longer DLQ window. Rows still
// waiting to publish are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    days(params.RetentionDays, defaultOutboxRetentionDays),
		dlqRetention: days(params.DLQRetentionDays, defaultDLQRetentionDays),
		now:          time.Now,
	}, nil
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxRetentionRepo
	dlq          dlqRetentionRepo
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return outboxRetentionEvery }

func (j *outboxRetentionJob) Run(ctx context.Context) (Result, error) {
	now := j.now().UTC()
	cutoff := now.Add(-j.retention)
	deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("outbox retention: %w", err)
	}
	var dropped int64
	if j.dlq != nil {
		dropped, err = j.dlq.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
		if err != nil {
			return Result{Processed: deleted}, fmt.Errorf("dlq retention: %w", err)
		}
	}
	if deleted+dropped > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":               cutoff,
			"rows_deleted":         deleted,
			"dead_letters_deleted": dropped,
		}), "outbox retention cleanup complete")
	}
	return Result{Processed: deleted + dropped}, nil
}
