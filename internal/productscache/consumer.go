package productscache

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

const consumerName = "products-cache"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type keyDeleter interface {
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
	ProductsPattern(distributorID, orderCycleID string) string
}

// Consumer drops cached listings named by products_cache_invalidated events.
type Consumer struct {
	subscription *pubsub.Subscriber
	idempotency  idempotencyChecker
	decoders     payloadDecoder
	keys         keyDeleter
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, manager idempotencyChecker, decoders payloadDecoder, keys keyDeleter, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("products cache subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if keys == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		idempotency:  manager,
		decoders:     decoders,
		keys:         keys,
		logg:         logg,
	}, nil
}

// Run receives messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack    bool
	deleted int64
}

func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventProductsCacheInvalidated) {
		c.logg.Info(logCtx, "skipping event not addressed to products cache")
		return processResult{}
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{}
	}
	eventID, _ := envelope.ID()

	decoded, err := c.decoders.Decode(enums.EventProductsCacheInvalidated, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{}
	}
	payload, ok := decoded.(*payloads.ProductsCacheInvalidatedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("got %T", decoded))
		return processResult{}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"reason":          payload.Reason,
		"distributor_ids": len(payload.DistributorIDs),
		"order_cycle_ids": len(payload.OrderCycleIDs),
	})
	deleted, err := c.Invalidate(ctx, *payload)
	if err != nil {
		c.logg.Error(logCtx, "products cache invalidation failed", err)
		_ = c.idempotency.Delete(ctx, consumerName, eventID)
		return processResult{nack: true}
	}
	c.logg.Info(c.logg.WithField(logCtx, "deleted", deleted), "products cache invalidated")
	return processResult{deleted: deleted}
}

// Invalidate deletes the listings the payload scopes. Distributors alone drop
// every cycle they sell in, cycles alone drop every distributor of the cycle,
// both drop their cross product and neither flushes all listings.
func (c *Consumer) Invalidate(ctx context.Context, payload payloads.ProductsCacheInvalidatedEvent) (int64, error) {
	var total int64
	for _, pattern := range Patterns(c.keys, payload.DistributorIDs, payload.OrderCycleIDs) {
		n, err := c.keys.DeleteMatching(ctx, pattern)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Patterns expands an invalidation scope into key match patterns.
func Patterns(keys interface {
	ProductsPattern(distributorID, orderCycleID string) string
}, distributorIDs, orderCycleIDs []uuid.UUID) []string {
	switch {
	case len(distributorIDs) == 0 && len(orderCycleIDs) == 0:
		return []string{keys.ProductsPattern("", "")}
	case len(orderCycleIDs) == 0:
		out := make([]string, 0, len(distributorIDs))
		for _, d := range distributorIDs {
			out = append(out, keys.ProductsPattern(d.String(), ""))
		}
		return out
	case len(distributorIDs) == 0:
		out := make([]string, 0, len(orderCycleIDs))
		for _, oc := range orderCycleIDs {
			out = append(out, keys.ProductsPattern("", oc.String()))
		}
		return out
	}
	out := make([]string, 0, len(distributorIDs)*len(orderCycleIDs))
	for _, d := range distributorIDs {
		for _, oc := range orderCycleIDs {
			out = append(out, keys.ProductsPattern(d.String(), oc.String()))
		}
	}
	return out
}
