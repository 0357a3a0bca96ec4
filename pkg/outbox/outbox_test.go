package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:outbox_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func emit(t *testing.T, conn *gorm.DB, svc *Service, cycle uuid.UUID) {
	t.Helper()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventProductsCacheInvalidated,
			AggregateType: enums.AggregateOrderCycle,
			AggregateID:   cycle,
			Data:          payloads.ProductsCacheInvalidatedEvent{OrderCycleIDs: []uuid.UUID{cycle}, Reason: "order_cycle_changed"},
		})
	})
	require.NoError(t, err)
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := openDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	cycle := uuid.New()

	emit(t, conn, svc, cycle)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, cycle, rows[0].AggregateID)

	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &env))
	assert.Equal(t, 1, env.Version)
	_, err := uuid.Parse(env.EventID)
	require.NoError(t, err)
	var data payloads.ProductsCacheInvalidatedEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, []uuid.UUID{cycle}, data.OrderCycleIDs)
}

func TestEmitRejectsUnknownEventAndRollsBack(t *testing.T) {
	conn := openDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "mystery", AggregateID: uuid.New()})
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCompleted}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	for i := 0; i < 3; i++ {
		emit(t, conn, svc, uuid.New())
	}

	var rows []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, rows[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, rows[1].ID, errors.New("timeout")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, rows[2].ID, errors.New("bad payload"), 3)
	}))
	require.Len(t, rows, 3)

	var pending []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		pending, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "timeout", *pending[0].LastError)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDLQRepository(t *testing.T) {
	conn := openDB(t)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()
	long := strings.Repeat("x", maxDLQErrorLen+50)

	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
	}
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error { return dlq.InsertTx(tx, entry) }))

	got, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, *got.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	entry.ErrorReason = "gave_up"
	err = conn.Transaction(func(tx *gorm.DB) error { return dlq.InsertTx(tx, entry) })
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.NewString()
	env, err := DecodeEnvelope([]byte(`{"eventId":"` + id + `","data":{"reason":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, env.Version)
	parsed, err := env.ID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed.String())

	for _, raw := range []string{
		`{"eventId":"` + id + `","data":null}`,
		`{"eventId":"` + id + `"}`,
		`{"eventId":"nope","data":{}}`,
		`[]`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, raw)
	}
}

func TestDLQReplayResetsOutboxRow(t *testing.T) {
	conn := openDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	event := models.OutboxEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	require.NoError(t, repo.Insert(conn, event))
	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored).Error)

	failedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		entry := stored.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("topic gone"), failedAt)
		if err := dlq.InsertTx(tx, entry); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, stored.ID, errors.New("topic gone"), 5)
	}))

	entries, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "topic gone", *entries[0].ErrorMessage)
	assert.True(t, entries[0].FailedAt.Equal(failedAt))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, dlq.Replay(ctx, stored.ID))
	pending, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].AttemptCount)
	assert.Nil(t, pending[0].LastError)

	assert.ErrorIs(t, dlq.Replay(ctx, stored.ID), ErrNotDeadLettered)
}

func TestEmitValidatesAggregate(t *testing.T) {
	conn := openDB(t)
	svc := NewService(NewRepository(conn), nil)

	cases := map[string]DomainEvent{
		"wrong aggregate":   {EventType: enums.EventOrderCompleted, AggregateType: enums.AggregateOrderCycle, AggregateID: uuid.New()},
		"missing aggregate": {EventType: enums.EventProductsCacheInvalidated, AggregateID: uuid.New()},
		"missing id":        {EventType: enums.EventProductsCacheInvalidated, AggregateType: enums.AggregateProduct},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := conn.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			assert.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	conn := openDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	deadLetter := func(failedAt time.Time) uuid.UUID {
		event := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
		}
		require.NoError(t, repo.Insert(conn, event))
		require.NoError(t, dlq.InsertTx(conn, event.DeadLetter(enums.OutboxDLQReasonNonRetryable, errors.New("bad"), failedAt)))
		return event.ID
	}
	old := deadLetter(cutoff.Add(-time.Hour))
	recent := deadLetter(cutoff.Add(time.Hour))

	deleted, err := dlq.DeleteFailedBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := dlq.FindByEventID(ctx, old)
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := dlq.FindByEventID(ctx, recent)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.Equal(t, []uuid.UUID{recent}, remaining)
}
