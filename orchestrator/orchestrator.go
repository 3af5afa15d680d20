// Package orchestrator performs the bulk job pause/resume cascades driven
// by circuit breaker transitions.
//
// The orchestrator exclusively mutates Job.status, task_handle and error
// during pause/resume. Batches are chunked to bound transaction size;
// within a chunk, database writes are all-or-nothing while task submission
// failures are isolated per job.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/job"
)

const (
	// DefaultChunkSize bounds jobs per storage transaction
	DefaultChunkSize = 50
	// DefaultSubmitAttempts bounds task submission retries per job
	DefaultSubmitAttempts = 3
)

// TaskRuntime submits asynchronous work for a job and returns an opaque
// handle. Must be idempotent-safe to call again on retry.
type TaskRuntime interface {
	Submit(ctx context.Context, jobID string, jobType job.Type, campaignID string) (string, error)
}

// JobObserver is notified after each committed job status change. The
// campaign coordinator implements this to propagate pauses and failures
// upward.
type JobObserver interface {
	OnJobStatusChanged(ctx context.Context, j *job.Job, oldStatus, newStatus job.Status)
}

// Backoff returns the delay before retry attempt n (1-based). The default
// policy is zero delay; tests inject their own to observe timing without
// sleeping.
type Backoff func(attempt int) time.Duration

// ZeroBackoff retries immediately
func ZeroBackoff(int) time.Duration { return 0 }

// Orchestrator performs bulk pause/resume over the job store
type Orchestrator struct {
	jobs           *job.Store
	runtime        TaskRuntime
	observer       JobObserver
	chunkSize      int
	submitAttempts int
	backoff        Backoff
	log            *zap.SugaredLogger
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithChunkSize overrides the per-transaction batch size
func WithChunkSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithSubmitAttempts overrides the bounded retry count for task submission
func WithSubmitAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.submitAttempts = n
		}
	}
}

// WithBackoff injects the retry delay policy
func WithBackoff(b Backoff) Option {
	return func(o *Orchestrator) { o.backoff = b }
}

// WithObserver wires per-job status change notifications
func WithObserver(obs JobObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an orchestrator over the job store and task runtime
func New(jobs *job.Store, runtime TaskRuntime, log *zap.SugaredLogger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		jobs:           jobs,
		runtime:        runtime,
		chunkSize:      DefaultChunkSize,
		submitAttempts: DefaultSubmitAttempts,
		backoff:        ZeroBackoff,
		log:            log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PauseAllActiveJobs pauses every PENDING or PROCESSING job, recording the
// reason on each. Each chunk commits atomically; a storage failure aborts
// the current chunk (already-committed chunks stand) and is surfaced to the
// caller. Returns the count paused. Idempotent in effect: a second call
// finds no active jobs and pauses zero.
func (o *Orchestrator) PauseAllActiveJobs(ctx context.Context, reason string) (int, error) {
	active, err := o.jobs.ListByStatus(ctx, job.ActiveStatuses...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active jobs")
	}

	message := fmt.Sprintf("Paused due to circuit breaker open: %s", reason)
	total := 0

	for _, chunk := range chunks(active, o.chunkSize) {
		oldStatuses := make([]job.Status, len(chunk))
		for i, j := range chunk {
			oldStatuses[i] = j.Status
			j.Pause(message)
		}

		if err := o.jobs.UpdateAll(ctx, chunk); err != nil {
			return total, errors.Wrap(err, "failed to commit pause batch")
		}
		total += len(chunk)

		o.notify(ctx, chunk, oldStatuses)
	}

	o.log.Infow("Paused active jobs", "count", total, "reason", reason)
	return total, nil
}

// ResumeAllPausedJobs returns every PAUSED job to PENDING and obtains a
// fresh task handle for each. Submission runs outside the storage
// transaction and is retried a bounded number of times; a job whose
// submission keeps failing is marked FAILED with the error recorded, without
// affecting the rest of the batch. Returns the count successfully resumed.
func (o *Orchestrator) ResumeAllPausedJobs(ctx context.Context) (int, error) {
	paused, err := o.jobs.ListByStatus(ctx, job.StatusPaused)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list paused jobs")
	}

	resumed := 0

	for _, chunk := range chunks(paused, o.chunkSize) {
		oldStatuses := make([]job.Status, len(chunk))

		// Task submission happens before the batch commit so no storage
		// transaction is held open across network calls.
		for i, j := range chunk {
			oldStatuses[i] = j.Status
			j.Resume()

			handle, err := o.submitWithRetry(ctx, j)
			if err != nil {
				j.Fail(errors.Wrapf(err, "task submission failed after %d attempts", o.submitAttempts))
				o.log.Warnw("Job resume failed, marking failed",
					"job_id", j.ID,
					"job_type", j.Type,
					"error", err)
				continue
			}
			j.AssignHandle(handle)
		}

		if err := o.jobs.UpdateAll(ctx, chunk); err != nil {
			return resumed, errors.Wrap(err, "failed to commit resume batch")
		}
		for _, j := range chunk {
			if j.Status == job.StatusPending {
				resumed++
			}
		}

		o.notify(ctx, chunk, oldStatuses)
	}

	o.log.Infow("Resumed paused jobs", "resumed", resumed, "selected", len(paused))
	return resumed, nil
}

// submitWithRetry attempts task submission up to the configured bound,
// sleeping per the injected backoff policy between attempts.
func (o *Orchestrator) submitWithRetry(ctx context.Context, j *job.Job) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.submitAttempts; attempt++ {
		handle, err := o.runtime.Submit(ctx, j.ID, j.Type, j.CampaignID)
		if err == nil {
			return handle, nil
		}
		lastErr = err

		if attempt < o.submitAttempts {
			if delay := o.backoff(attempt); delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
		}
	}
	return "", lastErr
}

func (o *Orchestrator) notify(ctx context.Context, chunk []*job.Job, oldStatuses []job.Status) {
	if o.observer == nil {
		return
	}
	for i, j := range chunk {
		if j.Status != oldStatuses[i] {
			o.observer.OnJobStatusChanged(ctx, j, oldStatuses[i], j.Status)
		}
	}
}

// chunks splits jobs into batches of at most size
func chunks(jobs []*job.Job, size int) [][]*job.Job {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]*job.Job
	for start := 0; start < len(jobs); start += size {
		end := start + size
		if end > len(jobs) {
			end = len(jobs)
		}
		out = append(out, jobs[start:end])
	}
	return out
}
