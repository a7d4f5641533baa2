package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/dbqueue/internal/queue"
	"github.com/maumercado/dbqueue/internal/store"
)

// markDead rewinds a worker's heartbeat far enough into the past for any
// cleanup timeout used in these tests.
func markDead(t *testing.T, db *store.Database, workerID int64) {
	t.Helper()
	require.NoError(t, db.DB().Model(&store.Worker{}).Where("id = ?", workerID).
		Update("last_heartbeat", time.Now().UTC().Add(-time.Hour)).Error)
}

func TestCleanup_ReclaimsTaskFromDeadWorker(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := submitTask(t, db, "f", nil, queue.WithRetries(1))
	r := registeredRunner(t, db, NewExecutor(nil))
	_, err := r.claim(ctx)
	require.NoError(t, err)

	markDead(t, db, r.ID())
	require.NoError(t, Cleanup(ctx, db, time.Minute))

	rec := taskByID(t, db, id)
	assert.Equal(t, store.StatusPending, rec.Status)
	assert.Equal(t, store.NoOwner, rec.Owner)
	assert.Equal(t, 0, rec.Retries)

	// The dead worker's pointer is cleared but its row stays for an
	// administrator to prune.
	w := workerByID(t, db, r.ID())
	assert.Nil(t, w.WorkingOnTaskID)
}

func TestCleanup_ExhaustedRetriesBecomeTimeout(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := submitTask(t, db, "f", nil, queue.WithRetries(0))
	r := registeredRunner(t, db, NewExecutor(nil))
	_, err := r.claim(ctx)
	require.NoError(t, err)

	markDead(t, db, r.ID())
	require.NoError(t, Cleanup(ctx, db, time.Minute))

	rec := taskByID(t, db, id)
	assert.Equal(t, store.StatusTimeout, rec.Status)
	assert.Equal(t, store.NoOwner, rec.Owner)
	assert.Equal(t, 0, rec.Retries)
	assert.Empty(t, rec.Results)
}

func TestCleanup_RetryTrajectory(t *testing.T) {
	// retries=2 allows three runs: claim, reclaim (retries 1), claim,
	// reclaim (retries 0), claim, reclaim -> TIMEOUT.
	db := openTestDB(t)
	ctx := context.Background()

	id := submitTask(t, db, "f", nil, queue.WithRetries(2))

	wantRetries := []int{1, 0}
	for _, want := range wantRetries {
		r := registeredRunner(t, db, NewExecutor(nil))
		claimed, err := r.claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		markDead(t, db, r.ID())
		require.NoError(t, Cleanup(ctx, db, time.Minute))

		rec := taskByID(t, db, id)
		assert.Equal(t, store.StatusPending, rec.Status)
		assert.Equal(t, want, rec.Retries)
	}

	// Final cycle: no retries left.
	r := registeredRunner(t, db, NewExecutor(nil))
	claimed, err := r.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	markDead(t, db, r.ID())
	require.NoError(t, Cleanup(ctx, db, time.Minute))

	rec := taskByID(t, db, id)
	assert.Equal(t, store.StatusTimeout, rec.Status)
	assert.Equal(t, 0, rec.Retries)
}

func TestCleanup_SkipsIdleDeadWorkers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	r := registeredRunner(t, db, NewExecutor(nil))
	markDead(t, db, r.ID())

	require.NoError(t, Cleanup(ctx, db, time.Minute))

	// Row survives every sweep once its pointer is null.
	w := workerByID(t, db, r.ID())
	assert.Nil(t, w.WorkingOnTaskID)
}

func TestCleanup_IgnoresLiveWorkers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := submitTask(t, db, "f", nil)
	r := registeredRunner(t, db, NewExecutor(nil))
	_, err := r.claim(ctx)
	require.NoError(t, err)

	require.NoError(t, Cleanup(ctx, db, time.Minute))

	rec := taskByID(t, db, id)
	assert.Equal(t, store.StatusRunning, rec.Status)
	assert.Equal(t, r.ID(), rec.Owner)
}

func TestCleanup_ReclaimThenComplete(t *testing.T) {
	// Worker A claims and dies mid-execution; cleanup hands the task to
	// worker B, which completes it. A's late save is rejected.
	db := openTestDB(t)
	ctx := context.Background()
	client := queue.NewClient(db)

	id := submitTask(t, db, "f", nil, queue.WithRetries(1))

	a := registeredRunner(t, db, NewExecutor(nil))
	_, err := a.claim(ctx)
	require.NoError(t, err)

	markDead(t, db, a.ID())
	require.NoError(t, Cleanup(ctx, db, time.Second))

	rec := taskByID(t, db, id)
	require.Equal(t, store.StatusPending, rec.Status)
	require.Equal(t, 0, rec.Retries)

	b := registeredRunner(t, db, NewExecutor(nil))
	claimed, err := b.claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, b.save(ctx, id, []byte(`"done by b"`), store.StatusDone))

	// A finally finishes and tries to save; the guard discards it.
	require.NoError(t, a.save(ctx, id, []byte(`"done by a"`), store.StatusDone))

	status, err := client.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, status)

	result, err := client.GetResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"done by b"`), result)
}

func TestCleanup_TerminalStateNeverReclaimedTwice(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id := submitTask(t, db, "f", nil, queue.WithRetries(0))
	r := registeredRunner(t, db, NewExecutor(nil))
	_, err := r.claim(ctx)
	require.NoError(t, err)

	markDead(t, db, r.ID())
	require.NoError(t, Cleanup(ctx, db, time.Minute))
	// A second sweep finds the pointer already cleared and leaves the
	// task alone.
	require.NoError(t, Cleanup(ctx, db, time.Minute))

	rec := taskByID(t, db, id)
	assert.Equal(t, store.StatusTimeout, rec.Status)
	assert.Equal(t, 0, rec.Retries)
}
