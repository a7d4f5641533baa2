package queue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/store"
)

func init() {
	logger.Init("error", false)
}

func newTestClient(t *testing.T) (*Client, *store.Database) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClient(db), db
}

func TestSubmit_Defaults(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), []byte(`{"x":1}`), 123)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	var rec store.Task
	require.NoError(t, db.DB().First(&rec, id).Error)
	assert.Equal(t, store.StatusPending, rec.Status)
	assert.Equal(t, store.NoOwner, rec.Owner)
	assert.Equal(t, int64(123), rec.Creator)
	assert.Equal(t, DefaultRetries, rec.Retries)
	assert.Equal(t, "", rec.RequiresTag)
	assert.Empty(t, rec.Results)
	assert.False(t, rec.LastUpdated.IsZero())
}

func TestSubmit_Options(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), nil, 1,
		WithRequiresTag("gpu"),
		WithRetries(3),
	)
	require.NoError(t, err)

	var rec store.Task
	require.NoError(t, db.DB().First(&rec, id).Error)
	assert.Equal(t, "gpu", rec.RequiresTag)
	assert.Equal(t, 3, rec.Retries)
}

func TestSubmit_NegativeRetriesIgnored(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), nil, 1, WithRetries(-5))
	require.NoError(t, err)

	var rec store.Task
	require.NoError(t, db.DB().First(&rec, id).Error)
	assert.Equal(t, DefaultRetries, rec.Retries)
}

func TestGetStatus(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), nil, 1)
	require.NoError(t, err)

	status, err := client.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, status)
}

func TestGetStatus_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetStatus(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestGetResult_EmptyWhilePending(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), nil, 1)
	require.NoError(t, err)

	result, err := client.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestGetResult_ReturnsBlob(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	id, err := client.Submit(ctx, []byte("f"), nil, 1)
	require.NoError(t, err)

	blob := []byte(`{"answer":42}`)
	require.NoError(t, db.DB().Model(&store.Task{}).Where("id = ?", id).
		Updates(map[string]any{"results": blob, "status": store.StatusDone}).Error)

	result, err := client.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, blob, result)
}

func TestGetResult_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetResult(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTasksOfCreator(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first, err := client.Submit(ctx, []byte("f"), nil, 10)
	require.NoError(t, err)
	second, err := client.Submit(ctx, []byte("g"), nil, 10)
	require.NoError(t, err)
	_, err = client.Submit(ctx, []byte("h"), nil, 20)
	require.NoError(t, err)

	tasks, err := client.TasksOfCreator(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, second, tasks[1].ID)
}

func TestListWorkers(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&store.Worker{Tag: "a", LastHeartbeat: time.Now().UTC()}).Error
	}))

	workers, err := client.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "a", workers[0].Tag)
}

func TestKillWorkers_ByTag(t *testing.T) {
	client, db := newTestClient(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&store.Worker{Tag: "victim", LastHeartbeat: now}).Error; err != nil {
			return err
		}
		if err := tx.Create(&store.Worker{Tag: "victim", LastHeartbeat: now}).Error; err != nil {
			return err
		}
		return tx.Create(&store.Worker{Tag: "spared", LastHeartbeat: now}).Error
	}))

	killed, err := client.KillWorkers(ctx, "victim")
	require.NoError(t, err)
	assert.Equal(t, int64(2), killed)

	workers, err := client.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "spared", workers[0].Tag)
}

func TestKillWorkers_NoMatch(t *testing.T) {
	client, _ := newTestClient(t)

	killed, err := client.KillWorkers(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), killed)
}
