package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekemper/leadgen/campaign"
	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/internal/testutil"
	"github.com/ekemper/leadgen/job"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	j := job.New("Fetch ACME leads", job.TypeFetch, "")
	require.NoError(t, store.Create(ctx, j))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, job.TypeFetch, got.Type)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Empty(t, got.CampaignID)
	assert.Nil(t, got.CompletedAt)
}

func TestStore_GetMissing(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)

	_, err := store.Get(context.Background(), "no-such-job")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_UpdateRoundTrip(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	j := job.New("Enrich leads", job.TypeEnrich, "")
	require.NoError(t, store.Create(ctx, j))

	j.Process("task-abc")
	require.NoError(t, store.Update(ctx, j))

	got, err := store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, got.Status)
	assert.Equal(t, "task-abc", got.TaskHandle)

	j.Complete()
	require.NoError(t, store.Update(ctx, j))

	got, err = store.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestStore_UpdateAllIsAtomic(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	var batch []*job.Job
	for i := 0; i < 3; i++ {
		j := job.New("batch job", job.TypeFetch, "")
		require.NoError(t, store.Create(ctx, j))
		batch = append(batch, j)
	}

	for _, j := range batch {
		j.Pause("maintenance window")
	}
	require.NoError(t, store.UpdateAll(ctx, batch))

	paused, err := store.ListByStatus(ctx, job.StatusPaused)
	require.NoError(t, err)
	assert.Len(t, paused, 3)
	for _, j := range paused {
		assert.Equal(t, "maintenance window", j.Error)
	}
}

func TestStore_ListByStatusOrdersOldestFirst(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		j := job.New("ordered job", job.TypeFetch, "")
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, j))
		ids = append(ids, j.ID)
	}

	listed, err := store.ListByStatus(ctx, job.StatusPending)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, j := range listed {
		assert.Equal(t, ids[i], j.ID)
	}
}

func TestStore_ListByStatusMultiple(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	pending := job.New("pending", job.TypeFetch, "")
	require.NoError(t, store.Create(ctx, pending))

	processing := job.New("processing", job.TypeEnrich, "")
	processing.Process("handle-1")
	require.NoError(t, store.Create(ctx, processing))

	done := job.New("done", job.TypeCleanup, "")
	done.Complete()
	require.NoError(t, store.Create(ctx, done))

	active, err := store.ListByStatus(ctx, job.ActiveStatuses...)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	none, err := store.ListByStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ListByCampaign(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	c := campaign.New("Owning campaign")
	require.NoError(t, campaign.NewStore(db).Create(ctx, c))

	owned := job.New("owned", job.TypeFetch, c.ID)
	require.NoError(t, store.Create(ctx, owned))
	unowned := job.New("unowned", job.TypeCleanup, "")
	require.NoError(t, store.Create(ctx, unowned))

	listed, err := store.ListByCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, owned.ID, listed[0].ID)
}

func TestStore_CleanupOld(t *testing.T) {
	db := testutil.CreateTestDB(t)
	store := job.NewStore(db)
	ctx := context.Background()

	old := job.New("old completed", job.TypeFetch, "")
	old.Complete()
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(ctx, old))

	fresh := job.New("fresh pending", job.TypeFetch, "")
	require.NoError(t, store.Create(ctx, fresh))

	removed, err := store.CleanupOld(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, old.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
}
