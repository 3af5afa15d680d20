// Package taskrt provides the asynchronous task runtime: submission of work
// for jobs (returning opaque handles) and an in-process worker pool that
// consumes submitted tasks from the shared queue.
package taskrt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/statestore"
)

// Task is the envelope pushed onto the shared queue for one unit of work
type Task struct {
	Handle      string    `json:"handle"`
	JobID       string    `json:"job_id"`
	JobType     job.Type  `json:"job_type"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// QueueRuntime submits tasks by pushing envelopes onto the shared state
// store queue and handing back a fresh handle. Re-submitting for the same
// job on retry is safe: workers discard envelopes whose handle no longer
// matches the job's current task handle.
type QueueRuntime struct {
	store statestore.Store
	queue string
}

// NewQueueRuntime creates a runtime publishing to the named queue
func NewQueueRuntime(store statestore.Store, queue string) *QueueRuntime {
	return &QueueRuntime{store: store, queue: queue}
}

// Submit enqueues work for the job and returns the new opaque handle
func (r *QueueRuntime) Submit(ctx context.Context, jobID string, jobType job.Type, campaignID string) (string, error) {
	task := Task{
		Handle:      uuid.NewString(),
		JobID:       jobID,
		JobType:     jobType,
		CampaignID:  campaignID,
		SubmittedAt: time.Now(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode task")
	}
	if err := r.store.Push(ctx, r.queue, payload); err != nil {
		return "", errors.Wrapf(err, "failed to submit task for job %s", jobID)
	}
	return task.Handle, nil
}
