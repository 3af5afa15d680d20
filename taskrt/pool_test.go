package taskrt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekemper/leadgen/breaker"
	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/internal/testutil"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/statestore"
)

// fakeGate is a controllable breaker stand-in
type fakeGate struct {
	allow     bool
	failures  int
	successes int
}

func (g *fakeGate) ShouldAllowRequest(ctx context.Context) bool { return g.allow }

func (g *fakeGate) RecordFailure(ctx context.Context, message, kind string) (*breaker.Outcome, error) {
	g.failures++
	g.allow = false
	return &breaker.Outcome{Transitioned: true}, nil
}

func (g *fakeGate) RecordSuccess(ctx context.Context) error {
	g.successes++
	return nil
}

func newTestPool(t *testing.T) (*Pool, *QueueRuntime, *job.Store, *fakeGate) {
	t.Helper()
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	store := statestore.NewMemoryStore()
	gate := &fakeGate{allow: true}

	cfg := PoolConfig{Workers: 1, Queue: "test:tasks", PollInterval: time.Millisecond}
	pool := NewPool(context.Background(), store, jobs, gate, cfg, zap.NewNop().Sugar())
	return pool, NewQueueRuntime(store, "test:tasks"), jobs, gate
}

func submitJob(t *testing.T, rt *QueueRuntime, jobs *job.Store, j *job.Job) {
	t.Helper()
	handle, err := rt.Submit(context.Background(), j.ID, j.Type, j.CampaignID)
	require.NoError(t, err)
	j.AssignHandle(handle)
	require.NoError(t, jobs.Create(context.Background(), j))
}

func TestPool_ExecutesTaskAndCompletes(t *testing.T) {
	pool, rt, jobs, gate := newTestPool(t)
	ctx := context.Background()

	executed := 0
	pool.Register(job.TypeFetch, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		executed++
		return nil
	}))

	j := job.New("fetch batch", job.TypeFetch, "")
	submitJob(t, rt, jobs, j)

	processed, err := pool.processNextTask()
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, gate.successes)
	assert.Equal(t, 0, gate.failures)

	got, err := jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestPool_HandlerFailureReportsToGate(t *testing.T) {
	pool, rt, jobs, gate := newTestPool(t)
	ctx := context.Background()

	pool.Register(job.TypeEnrich, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		return errors.New("openai returned 500")
	}))

	j := job.New("enrich batch", job.TypeEnrich, "")
	submitJob(t, rt, jobs, j)

	_, err := pool.processNextTask()
	require.NoError(t, err)
	assert.Equal(t, 1, gate.failures)
	assert.Equal(t, 0, gate.successes)

	got, err := jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "openai returned 500")
}

func TestPool_DefersWhenGateClosed(t *testing.T) {
	pool, rt, jobs, gate := newTestPool(t)
	gate.allow = false
	ctx := context.Background()

	pool.Register(job.TypeFetch, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		t.Fatal("handler must not run while the breaker is open")
		return nil
	}))

	j := job.New("deferred fetch", job.TypeFetch, "")
	submitJob(t, rt, jobs, j)

	_, err := pool.processNextTask()
	require.NoError(t, err)

	got, err := jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status, "job left pending for the pause cascade")
}

func TestPool_DropsStaleEnvelope(t *testing.T) {
	pool, rt, jobs, _ := newTestPool(t)
	ctx := context.Background()

	executed := 0
	pool.Register(job.TypeFetch, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		executed++
		return nil
	}))

	j := job.New("superseded fetch", job.TypeFetch, "")
	submitJob(t, rt, jobs, j)

	// A resume replaced the handle after this envelope was queued.
	j.AssignHandle("fresh-handle")
	require.NoError(t, jobs.Update(ctx, j))

	processed, err := pool.processNextTask()
	require.NoError(t, err)
	assert.True(t, processed, "dropped envelope still counts as consumed")
	assert.Equal(t, 0, executed, "stale envelope dropped without execution")

	got, err := jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
}

func TestPool_DropsEnvelopeForMissingJob(t *testing.T) {
	pool, rt, _, _ := newTestPool(t)

	_, err := rt.Submit(context.Background(), "deleted-job", job.TypeFetch, "")
	require.NoError(t, err)

	_, err = pool.processNextTask()
	require.NoError(t, err)
}

func TestPool_EmptyQueueIsQuiet(t *testing.T) {
	pool, _, _, _ := newTestPool(t)
	processed, err := pool.processNextTask()
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestPool_NoHandlerFailsJob(t *testing.T) {
	pool, rt, jobs, _ := newTestPool(t)
	ctx := context.Background()

	j := job.New("unhandled cleanup", job.TypeCleanup, "")
	submitJob(t, rt, jobs, j)

	_, err := pool.processNextTask()
	require.NoError(t, err)

	got, err := jobs.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "no handler registered")
}

func TestPool_DrainsBurstWithoutWaitingPerEnvelope(t *testing.T) {
	pool, rt, jobs, gate := newTestPool(t)
	ctx := context.Background()

	executed := 0
	pool.Register(job.TypeFetch, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		executed++
		return nil
	}))

	var queued []*job.Job
	for i := 0; i < 5; i++ {
		j := job.New(fmt.Sprintf("burst fetch %d", i), job.TypeFetch, "")
		submitJob(t, rt, jobs, j)
		queued = append(queued, j)
	}

	// One drain pass empties the whole queue.
	pool.drain(0)

	assert.Equal(t, 5, executed)
	assert.Equal(t, 5, gate.successes)
	for _, j := range queued {
		got, err := jobs.Get(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusCompleted, got.Status)
	}
}

func TestPool_StartStop(t *testing.T) {
	pool, rt, jobs, _ := newTestPool(t)

	done := make(chan struct{})
	pool.Register(job.TypeFetch, HandlerFunc(func(ctx context.Context, j *job.Job) error {
		close(done)
		return nil
	}))

	j := job.New("background fetch", job.TypeFetch, "")
	submitJob(t, rt, jobs, j)

	pool.Start()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the task")
	}
	pool.Stop()
}
