package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/internal/testutil"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/orchestrator"
)

// fakeRuntime issues sequential handles and can be set to fail for
// specific job IDs.
type fakeRuntime struct {
	mu       sync.Mutex
	submits  int
	failFor  map[string]bool
	attempts map[string]int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		failFor:  make(map[string]bool),
		attempts: make(map[string]int),
	}
}

func (f *fakeRuntime) Submit(ctx context.Context, jobID string, jobType job.Type, campaignID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[jobID]++
	if f.failFor[jobID] {
		return "", errors.New("queue unreachable")
	}
	f.submits++
	return fmt.Sprintf("handle-%d", f.submits), nil
}

// recordingObserver captures per-job status notifications
type recordingObserver struct {
	mu      sync.Mutex
	changes []string
}

func (r *recordingObserver) OnJobStatusChanged(ctx context.Context, j *job.Job, oldStatus, newStatus job.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, fmt.Sprintf("%s:%s->%s", j.Name, oldStatus, newStatus))
}

func createJobs(t *testing.T, store *job.Store, status job.Status, count int) []*job.Job {
	t.Helper()
	var created []*job.Job
	for i := 0; i < count; i++ {
		j := job.New(fmt.Sprintf("%s job %d", status, i), job.TypeFetch, "")
		switch status {
		case job.StatusProcessing:
			j.Process(fmt.Sprintf("old-handle-%d", i))
		case job.StatusPaused:
			j.AssignHandle(fmt.Sprintf("stale-handle-%d", i))
			j.Pause("Paused due to circuit breaker open: apollo outage")
		case job.StatusCompleted:
			j.Complete()
		}
		require.NoError(t, store.Create(context.Background(), j))
		created = append(created, j)
	}
	return created
}

func TestPauseAllActiveJobs(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	createJobs(t, jobs, job.StatusPending, 3)
	createJobs(t, jobs, job.StatusProcessing, 2)
	createJobs(t, jobs, job.StatusCompleted, 1)

	o := orchestrator.New(jobs, newFakeRuntime(), zap.NewNop().Sugar())

	paused, err := o.PauseAllActiveJobs(ctx, "apollo outage")
	require.NoError(t, err)
	assert.Equal(t, 5, paused, "pending and processing jobs pause, completed ones do not")

	listed, err := jobs.ListByStatus(ctx, job.StatusPaused)
	require.NoError(t, err)
	require.Len(t, listed, 5)
	for _, j := range listed {
		assert.Equal(t, "Paused due to circuit breaker open: apollo outage", j.Error)
	}

	counts, err := jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.StatusCompleted])
}

func TestPauseAllActiveJobsIsIdempotent(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	createJobs(t, jobs, job.StatusPending, 2)

	o := orchestrator.New(jobs, newFakeRuntime(), zap.NewNop().Sugar())

	paused, err := o.PauseAllActiveJobs(ctx, "first pass")
	require.NoError(t, err)
	assert.Equal(t, 2, paused)

	paused, err = o.PauseAllActiveJobs(ctx, "second pass")
	require.NoError(t, err)
	assert.Equal(t, 0, paused, "second pass finds nothing active")
}

func TestResumeAllPausedJobsIssuesFreshHandles(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	paused := createJobs(t, jobs, job.StatusPaused, 3)

	rt := newFakeRuntime()
	o := orchestrator.New(jobs, rt, zap.NewNop().Sugar())

	resumed, err := o.ResumeAllPausedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, resumed)

	for _, was := range paused {
		got, err := jobs.Get(ctx, was.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusPending, got.Status)
		assert.Empty(t, got.Error, "stale pause reason cleared")
		assert.NotEmpty(t, got.TaskHandle)
		assert.NotEqual(t, was.TaskHandle, got.TaskHandle, "resume issues a fresh handle")
	}
}

func TestResumeIsolatesSubmissionFailures(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	paused := createJobs(t, jobs, job.StatusPaused, 4)
	victim := paused[1]

	rt := newFakeRuntime()
	rt.failFor[victim.ID] = true
	o := orchestrator.New(jobs, rt, zap.NewNop().Sugar())

	resumed, err := o.ResumeAllPausedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, resumed, "the failing job does not count as resumed")

	got, err := jobs.Get(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "task submission failed after 3 attempts")
	assert.Equal(t, 3, rt.attempts[victim.ID], "submission retried up to the bound")

	pending, err := jobs.ListByStatus(ctx, job.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestResumeRespectsInjectedBackoff(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	victim := createJobs(t, jobs, job.StatusPaused, 1)[0]

	rt := newFakeRuntime()
	rt.failFor[victim.ID] = true

	var delays []int
	o := orchestrator.New(jobs, rt, zap.NewNop().Sugar(),
		orchestrator.WithSubmitAttempts(3),
		orchestrator.WithBackoff(func(attempt int) time.Duration {
			delays = append(delays, attempt)
			return 0
		}),
	)

	_, err := o.ResumeAllPausedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, delays, "backoff consulted between attempts, not after the last")
}

func TestChunkedPauseNotifiesObserver(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)
	ctx := context.Background()

	createJobs(t, jobs, job.StatusPending, 5)

	obs := &recordingObserver{}
	o := orchestrator.New(jobs, newFakeRuntime(), zap.NewNop().Sugar(),
		orchestrator.WithChunkSize(2),
		orchestrator.WithObserver(obs),
	)

	paused, err := o.PauseAllActiveJobs(ctx, "chunked outage")
	require.NoError(t, err)
	assert.Equal(t, 5, paused)
	assert.Len(t, obs.changes, 5, "observer notified once per job across all chunks")
	for _, change := range obs.changes {
		assert.Contains(t, change, "pending->paused")
	}
}

func TestResumeWithNothingPaused(t *testing.T) {
	db := testutil.CreateTestDB(t)
	jobs := job.NewStore(db)

	o := orchestrator.New(jobs, newFakeRuntime(), zap.NewNop().Sugar())

	resumed, err := o.ResumeAllPausedJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
}
