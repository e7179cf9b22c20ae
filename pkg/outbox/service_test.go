package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pokecard-storefront/pkg/db/models"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func TestEmitWritesEnvelope(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	orderID := uuid.New()
	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: uuid.New(), Source: "stripe"},
		Data:          map[string]int{"totalCents": 9500},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, orderID, row.AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.True(t, envelope.OccurredAt.Equal(fixed))
	assert.JSONEq(t, `{"totalCents":9500}`, string(envelope.Data))
	assert.Equal(t, "stripe", envelope.Actor.Source)
}

func TestEmitRejectsUnknownEvents(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	require.Error(t, err)
	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder})
	require.Error(t, err)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestEmitIfNotExistsDeduplicates(t *testing.T) {
	conn := newTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	event := DomainEvent{
		EventType:     enums.EventCheckoutExpired,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"source": "cron"},
	}
	require.NoError(t, svc.EmitIfNotExists(context.Background(), conn, event))
	require.NoError(t, svc.EmitIfNotExists(context.Background(), conn, event))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          i,
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("broker down")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "broker down", *pending[0].LastError)
}
