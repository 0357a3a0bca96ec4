package invalidation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/internal/testdb"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

func TestInvalidateWritesOutboxRow(t *testing.T) {
	db := testdb.Open(t)
	emitter, err := NewEmitter(outbox.NewService(outbox.NewRepository(db), nil))
	require.NoError(t, err)

	hub := uuid.New()
	oc := uuid.New()
	require.NoError(t, emitter.Invalidate(context.Background(), db,
		Source{Type: enums.AggregateOrderCycle, ID: oc},
		Scope{DistributorIDs: []uuid.UUID{hub, hub, uuid.Nil}, OrderCycleIDs: []uuid.UUID{oc}},
		ReasonOrderCycleChanged,
	))

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventProductsCacheInvalidated, rows[0].EventType)
	require.Equal(t, oc, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var evt payloads.ProductsCacheInvalidatedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &evt))
	require.Equal(t, []uuid.UUID{hub}, evt.DistributorIDs)
	require.Equal(t, []uuid.UUID{oc}, evt.OrderCycleIDs)
	require.Equal(t, ReasonOrderCycleChanged, evt.Reason)
}

func TestNewEmitterRequiresOutbox(t *testing.T) {
	_, err := NewEmitter(nil)
	require.Error(t, err)
}
