// Package job provides the pipeline's unit of work: a long-running operation
// against one third-party service, owned by at most one campaign.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusPaused     Status = "paused"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted,
		StatusFailed, StatusCancelled, StatusPaused:
		return true
	default:
		return false
	}
}

// ActiveStatuses are the statuses eligible for a breaker-driven bulk pause.
var ActiveStatuses = []Status{StatusPending, StatusProcessing}

// Type identifies which third-party operation a job performs
type Type string

const (
	TypeFetch   Type = "fetch"   // fetch leads from the prospecting service
	TypeEnrich  Type = "enrich"  // enrich a lead via the LLM service
	TypeCleanup Type = "cleanup" // campaign cleanup
)

// IsValidType returns true if the type string is a valid Type
func IsValidType(s string) bool {
	switch Type(s) {
	case TypeFetch, TypeEnrich, TypeCleanup:
		return true
	default:
		return false
	}
}

// Job represents one pipeline work unit.
//
// CampaignID is a weak reference: a job is owned by at most one campaign,
// and deleting a job never deletes the campaign. TaskHandle is the opaque
// reference issued by the async task runtime; it is replaced with a fresh
// handle whenever the orchestrator resumes the job.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        Type       `json:"job_type"`
	Status      Status     `json:"status"`
	CampaignID  string     `json:"campaign_id,omitempty"`
	TaskHandle  string     `json:"task_handle,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending job owned by the given campaign (empty = unowned).
func New(name string, jobType Type, campaignID string) *Job {
	now := time.Now()
	return &Job{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       jobType,
		Status:     StatusPending,
		CampaignID: campaignID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Process marks the job as processing under the given task handle
func (j *Job) Process(handle string) {
	j.Status = StatusProcessing
	j.TaskHandle = handle
	j.UpdatedAt = time.Now()
}

// Pause marks the job as paused with an explanatory error message
func (j *Job) Pause(reason string) {
	j.Status = StatusPaused
	j.Error = reason
	j.UpdatedAt = time.Now()
}

// Resume returns the job to pending and clears the stale error and handle.
// A fresh task handle is assigned separately once submission succeeds.
func (j *Job) Resume() {
	j.Status = StatusPending
	j.Error = ""
	j.TaskHandle = ""
	j.UpdatedAt = time.Now()
}

// AssignHandle stores a freshly issued task handle
func (j *Job) AssignHandle(handle string) {
	j.TaskHandle = handle
	j.UpdatedAt = time.Now()
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with an error message
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = StatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = StatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}
