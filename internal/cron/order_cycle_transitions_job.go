package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	ofnredis "github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

const orderCycleTransitionsJobName = "order-cycle-transitions"

type transitionFinder interface {
	TransitionedBetween(ctx context.Context, from, to time.Time) ([]models.OrderCycle, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type watermarkStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CronKey(job, name string) string
}

type OrderCycleTransitionsJobParams struct {
	Logger      *logger.Logger
	OrderCycles transitionFinder
	Cache       cacheInvalidator
	Tx          txRunner
	Watermarks  watermarkStore
	// Lookback bounds the first window when no watermark exists yet.
	Lookback time.Duration
}

// NewOrderCycleTransitionsJob drops cached listings of cycles that opened or
// closed since the previous run. The window end is persisted in redis so
// replicas and restarts neither skip nor repeat a transition.
func NewOrderCycleTransitionsJob(params OrderCycleTransitionsJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.OrderCycles == nil:
		return nil, fmt.Errorf("order cycle repository required")
	case params.Cache == nil:
		return nil, fmt.Errorf("cache invalidator required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Watermarks == nil:
		return nil, fmt.Errorf("watermark store required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultInterval
	}
	return &orderCycleTransitionsJob{
		logg:        params.Logger,
		orderCycles: params.OrderCycles,
		cache:       params.Cache,
		tx:          params.Tx,
		watermarks:  params.Watermarks,
		lookback:    lookback,
		now:         time.Now,
	}, nil
}

type orderCycleTransitionsJob struct {
	logg        *logger.Logger
	orderCycles transitionFinder
	cache       cacheInvalidator
	tx          txRunner
	watermarks  watermarkStore
	lookback    time.Duration
	now         func() time.Time
}

func (j *orderCycleTransitionsJob) Name() string { return orderCycleTransitionsJobName }

func (j *orderCycleTransitionsJob) Run(ctx context.Context) (Result, error) {
	key := j.watermarks.CronKey(orderCycleTransitionsJobName, "watermark")
	to := j.now().UTC()
	from, err := j.from(ctx, key, to)
	if err != nil {
		return Result{}, err
	}
	if !to.After(from) {
		return Result{}, nil
	}

	cycles, err := j.orderCycles.TransitionedBetween(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("load transitioned order cycles: %w", err)
	}
	if len(cycles) > 0 {
		err = j.tx.WithTx(ctx, func(tx *gorm.DB) error {
			for _, oc := range cycles {
				if err := j.cache.Invalidate(ctx, tx,
					invalidation.Source{Type: enums.AggregateOrderCycle, ID: oc.ID},
					invalidation.Scope{OrderCycleIDs: []uuid.UUID{oc.ID}},
					invalidation.ReasonOrderCycleTransitioned,
				); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("queue invalidations: %w", err)
		}
	}

	// A lost watermark repeats this window on the next run.
	if err := j.watermarks.Set(ctx, key, to.Format(time.RFC3339Nano), 0); err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "failed to persist transition watermark")
	}
	return Result{Processed: int64(len(cycles))}, nil
}

func (j *orderCycleTransitionsJob) from(ctx context.Context, key string, to time.Time) (time.Time, error) {
	raw, err := j.watermarks.Get(ctx, key)
	if ofnredis.IsMiss(err) {
		return to.Add(-j.lookback), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read transition watermark: %w", err)
	}
	from, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "watermark", raw), "discarding unparseable transition watermark")
		return to.Add(-j.lookback), nil
	}
	return from, nil
}
