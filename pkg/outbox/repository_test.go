package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/migrate"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:outbox_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.ApplySQLite(conn))
	return conn
}

func seedEvent(t *testing.T, conn *gorm.DB, created time.Time, published *time.Time, attempts int) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPurchaseCreated,
		AggregateType: enums.AggregatePurchase,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     created,
		PublishedAt:   published,
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

func TestFetchUnpublishedSkipsPublishedAndTerminal(t *testing.T) {
	conn := newRepoDB(t)
	repo := NewRepository(conn)
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	published := base

	second := seedEvent(t, conn, base.Add(time.Minute), nil, 1)
	first := seedEvent(t, conn, base, nil, 0)
	seedEvent(t, conn, base, &published, 0)
	seedEvent(t, conn, base, nil, 10)

	rows, err := repo.FetchUnpublishedForPublish(conn, 5, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, first, rows[0].ID)
	require.Equal(t, second, rows[1].ID)

	require.NoError(t, repo.MarkFailedTx(conn, first, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkPublishedTx(conn, second))

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", first).Error)
	require.Equal(t, 1, failed.AttemptCount)
	require.Equal(t, "pubsub unavailable", *failed.LastError)

	_, err = repo.FetchUnpublishedForPublish(nil, 5, 10)
	require.Error(t, err)
}

func TestDeletePublishedBefore(t *testing.T) {
	conn := newRepoDB(t)
	repo := NewRepository(conn)
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	seedEvent(t, conn, old, &old, 0)
	seedEvent(t, conn, old, nil, 10)
	keepPending := seedEvent(t, conn, old, nil, 3)
	keepRecent := seedEvent(t, conn, recent, &recent, 0)

	n, err := repo.DeletePublishedBefore(context.Background(), nil, cutoff, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	require.ElementsMatch(t, []uuid.UUID{keepPending, keepRecent}, ids)
}
