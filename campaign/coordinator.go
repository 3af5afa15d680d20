package campaign

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/job"
)

// Coordinator propagates job-level status changes up to the owning campaign
// and applies breaker transitions across all running campaigns.
//
// The coordinator never resumes a campaign. Recovery is always a separate,
// explicit operator action; closing the breaker leaves campaign statuses
// untouched.
type Coordinator struct {
	campaigns    *Store
	dependencies []string // known third-party dependency names, for tagging
	log          *zap.SugaredLogger
}

// NewCoordinator creates a coordinator over the campaign store. dependencies
// are the known third-party service names used to tag pause events.
func NewCoordinator(campaigns *Store, dependencies []string, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		campaigns:    campaigns,
		dependencies: dependencies,
		log:          log,
	}
}

// OnJobStatusChanged reacts to a single job's status transition. A job
// pausing or failing pauses its owning campaign; failures are treated
// identically to pauses. Completions and processing transitions never touch
// the campaign - there is no automatic resume.
func (co *Coordinator) OnJobStatusChanged(ctx context.Context, j *job.Job, oldStatus, newStatus job.Status) {
	switch newStatus {
	case job.StatusPaused, job.StatusFailed:
		co.pauseOwningCampaign(ctx, j, newStatus)
	case job.StatusCompleted, job.StatusProcessing:
		// no campaign action
	default:
		co.log.Debugw("Job status changed, no campaign action",
			"job_id", j.ID,
			"old_status", oldStatus,
			"new_status", newStatus)
	}
}

func (co *Coordinator) pauseOwningCampaign(ctx context.Context, j *job.Job, newStatus job.Status) {
	if j.CampaignID == "" {
		return
	}

	c, err := co.campaigns.Get(ctx, j.CampaignID)
	if err != nil {
		co.log.Warnw("Failed to load campaign for job status change",
			"job_id", j.ID,
			"campaign_id", j.CampaignID,
			"error", err)
		return
	}

	reason := fmt.Sprintf("Paused due to job %q (%s): %s", j.Name, newStatus, j.Error)
	if !c.PauseForDependency(co.matchDependency(j.Error), reason) {
		co.log.Debugw("Campaign not running, skipping pause",
			"campaign_id", c.ID,
			"campaign_status", c.Status,
			"job_id", j.ID)
		return
	}

	if err := co.campaigns.Update(ctx, c); err != nil {
		co.log.Errorw("Failed to pause campaign",
			"campaign_id", c.ID,
			"job_id", j.ID,
			"error", err)
		return
	}

	co.log.Infow("Campaign paused due to job status change",
		"campaign_id", c.ID,
		"job_id", j.ID,
		"job_status", newStatus)
}

// OnBreakerOpened pauses every currently running campaign, unconditionally.
// The breaker is global, so no dependency analysis happens here: any failure
// pauses everything. Returns (eligible, paused).
func (co *Coordinator) OnBreakerOpened(ctx context.Context, reason string) (int, int, error) {
	running, err := co.campaigns.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to list running campaigns")
	}

	dependency := co.matchDependency(reason)
	message := fmt.Sprintf("Paused due to circuit breaker open: %s", reason)

	paused := 0
	for _, c := range running {
		if !c.PauseForDependency(dependency, message) {
			continue
		}
		if err := co.campaigns.Update(ctx, c); err != nil {
			co.log.Errorw("Failed to pause campaign on breaker open",
				"campaign_id", c.ID,
				"error", err)
			continue
		}
		paused++
	}

	co.log.Infow("Breaker open cascade complete",
		"campaigns_eligible", len(running),
		"campaigns_paused", paused,
		"reason", reason)

	return len(running), paused, nil
}

// OnBreakerClosed performs no campaign mutation. Campaigns stay paused until
// an operator resumes each one explicitly.
func (co *Coordinator) OnBreakerClosed(ctx context.Context) {
	co.log.Infow("Breaker closed; campaigns remain paused until explicitly resumed")
}

// matchDependency maps a free-text reason to a known dependency name.
// Returns empty when no dependency is recognizable.
func (co *Coordinator) matchDependency(reason string) string {
	return matchDependencyName(reason, co.dependencies)
}
