// Package campaign provides campaign records, their state machine, and the
// coordination logic that propagates job-level failures up to campaigns.
package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a campaign
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusCreated, StatusRunning, StatusPaused, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// validTransitions encodes the campaign state machine.
// COMPLETED and FAILED are terminal.
var validTransitions = map[Status][]Status{
	StatusCreated: {StatusRunning, StatusFailed},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusFailed},
}

// Campaign groups jobs under one tenant workflow. It owns zero or more jobs.
//
// Every status mutation is an explicit, validated transition: an invalid
// transition is a no-op reporting false, never an error. PausedDependency
// tags which third-party dependency triggered a pause, so the status summary
// does not have to guess from free text.
type Campaign struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Status           Status     `json:"status"`
	StatusMessage    string     `json:"status_message,omitempty"`
	StatusError      string     `json:"status_error,omitempty"`
	PausedDependency string     `json:"paused_dependency,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
}

// New creates a campaign in the CREATED state
func New(name string) *Campaign {
	now := time.Now()
	return &Campaign{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanTransition reports whether moving to the target status is valid
func (c *Campaign) CanTransition(to Status) bool {
	for _, allowed := range validTransitions[c.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Start transitions CREATED -> RUNNING. Returns false without mutating
// state if the transition is invalid.
func (c *Campaign) Start(message string) bool {
	if !c.CanTransition(StatusRunning) || c.Status != StatusCreated {
		return false
	}
	c.Status = StatusRunning
	c.StatusMessage = message
	c.UpdatedAt = time.Now()
	return true
}

// Pause transitions RUNNING -> PAUSED with a reason. Returns false without
// mutating state if the campaign is not running.
func (c *Campaign) Pause(reason string) bool {
	return c.PauseForDependency("", reason)
}

// PauseForDependency pauses the campaign and tags the third-party dependency
// that triggered it (empty when unknown).
func (c *Campaign) PauseForDependency(dependency, reason string) bool {
	if c.Status != StatusRunning || !c.CanTransition(StatusPaused) {
		return false
	}
	c.Status = StatusPaused
	c.StatusMessage = reason
	c.PausedDependency = dependency
	c.UpdatedAt = time.Now()
	return true
}

// Resume transitions PAUSED -> RUNNING. This is only ever invoked by an
// explicit operator action; nothing resumes a campaign automatically.
func (c *Campaign) Resume(message string) bool {
	if c.Status != StatusPaused || !c.CanTransition(StatusRunning) {
		return false
	}
	c.Status = StatusRunning
	c.StatusMessage = message
	c.PausedDependency = ""
	c.UpdatedAt = time.Now()
	return true
}

// Complete transitions RUNNING -> COMPLETED
func (c *Campaign) Complete(message string) bool {
	if !c.CanTransition(StatusCompleted) {
		return false
	}
	now := time.Now()
	c.Status = StatusCompleted
	c.StatusMessage = message
	c.CompletedAt = &now
	c.UpdatedAt = now
	return true
}

// Fail transitions any non-terminal status to FAILED
func (c *Campaign) Fail(errMsg string) bool {
	if !c.CanTransition(StatusFailed) {
		return false
	}
	now := time.Now()
	c.Status = StatusFailed
	c.StatusError = errMsg
	c.FailedAt = &now
	c.UpdatedAt = now
	return true
}
