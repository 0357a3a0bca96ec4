// Package invalidation queues products-cache invalidations through the outbox
// so they are delivered only when the surrounding mutation commits.
package invalidation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

const (
	ReasonOrderCycleChanged      = "order_cycle_changed"
	ReasonOrderCycleTransitioned = "order_cycle_transitioned"
	ReasonVariantOverrideChanged = "variant_override_changed"
	ReasonPermissionChanged      = "permission_changed"
	ReasonProductImported        = "product_imported"
	ReasonEnterpriseChanged      = "enterprise_changed"
)

// Scope narrows which cached listings are dropped. An empty scope drops all.
type Scope struct {
	DistributorIDs []uuid.UUID
	OrderCycleIDs  []uuid.UUID
}

// Source identifies the aggregate whose change triggered the invalidation.
type Source struct {
	Type enums.OutboxAggregateType
	ID   uuid.UUID
}

type Emitter struct {
	outbox outbox.Emitter
}

func NewEmitter(out outbox.Emitter) (*Emitter, error) {
	if out == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Emitter{outbox: out}, nil
}

// Invalidate records a products_cache_invalidated event in tx.
func (e *Emitter) Invalidate(ctx context.Context, tx *gorm.DB, source Source, scope Scope, reason string) error {
	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductsCacheInvalidated,
		AggregateType: source.Type,
		AggregateID:   source.ID,
		Data: payloads.ProductsCacheInvalidatedEvent{
			DistributorIDs: dedupe(scope.DistributorIDs),
			OrderCycleIDs:  dedupe(scope.OrderCycleIDs),
			Reason:         reason,
		},
	})
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
