package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/pubsub"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

const heartbeatInterval = 30 * time.Second

// consumer is a long-running subscription handler.
type consumer interface {
	Run(ctx context.Context) error
}

type pinger func(context.Context) error

type ServiceParams struct {
	Config                *config.Config
	Logger                *logger.Logger
	DB                    *db.Client
	Redis                 *redis.Client
	PubSub                *pubsub.Client
	ProductsCacheConsumer consumer
}

type Service struct {
	cfg       *config.Config
	logg      *logger.Logger
	consumers map[string]consumer
	pings     map[string]pinger
	order     []string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.ProductsCacheConsumer == nil {
		return nil, errors.New("products cache consumer is required")
	}

	return &Service{
		cfg:       params.Config,
		logg:      params.Logger,
		consumers: map[string]consumer{"products-cache": params.ProductsCacheConsumer},
		pings: map[string]pinger{
			"database": params.DB.Ping,
			"redis":    params.Redis.Ping,
			"pubsub":   params.PubSub.Ping,
		},
		order: []string{"database", "redis", "pubsub"},
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, name := range s.order {
		if err := pingDependency(ctx, s.logg, name, s.pings[name]); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn pinger) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or a consumer exits.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	errCh := make(chan error, len(s.consumers))
	for name, c := range s.consumers {
		go func(name string, c consumer) {
			if err := c.Run(ctx); err != nil {
				errCh <- fmt.Errorf("%s consumer: %w", name, err)
				return
			}
			errCh <- nil
		}(name, c)
	}

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			}
			return err
		case <-ticker.C:
			s.logg.Debug(ctx, "worker heartbeat")
		}
	}
}
