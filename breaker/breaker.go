// Package breaker implements the global circuit breaker for third-party
// services.
//
// The breaker is intentionally simpler than classic half-open designs: it is
// global, binary, and never closes on its own. Any reported failure opens it;
// only a manual operator action closes it. Recorded successes update metadata
// but can never flip the state, trading probing-based recovery for
// human-verified recovery.
//
// State lives in the shared state store as one JSON record under a single
// global key. Every write, metadata refreshes included, goes through
// compare-and-swap against the bytes previously read, so concurrent
// processes cannot both win the CLOSED -> OPEN transition and a stale
// writer cannot erase a transition it did not observe. Absence of the key
// is defined to mean CLOSED, which makes the 24h soft expiry on the record
// a defensive decay rather than a correctness mechanism.
package breaker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekemper/leadgen/alerting"
	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/statestore"
)

// State is the breaker's binary state
type State string

const (
	StateClosed State = "closed" // requests permitted
	StateOpen   State = "open"   // requests blocked
)

// DefaultTTL is the soft expiry on the persisted breaker record
const DefaultTTL = 24 * time.Hour

// maxSwapAttempts bounds re-read retries on a contended breaker record
const maxSwapAttempts = 5

// Record is the persisted breaker state. Exactly one logical instance
// exists system-wide.
type Record struct {
	State    State                  `json:"state"`
	OpenedAt *time.Time             `json:"opened_at,omitempty"`
	ClosedAt *time.Time             `json:"closed_at,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Outcome is the structured result of a breaker mutation, distinguishing
// "transitioned" from "already in target state" so callers can report
// idempotent no-ops explicitly.
type Outcome struct {
	Transitioned      bool   `json:"transitioned"`
	Reason            string `json:"reason,omitempty"`
	JobsAffected      int    `json:"jobs_affected"`
	CampaignsEligible int    `json:"campaigns_eligible,omitempty"`
	CampaignsPaused   int    `json:"campaigns_paused,omitempty"`
}

// JobOrchestrator performs the bulk job cascade on breaker transitions
type JobOrchestrator interface {
	PauseAllActiveJobs(ctx context.Context, reason string) (int, error)
	ResumeAllPausedJobs(ctx context.Context) (int, error)
}

// CampaignCascade propagates breaker transitions to campaigns
type CampaignCascade interface {
	OnBreakerOpened(ctx context.Context, reason string) (eligible, paused int, err error)
	OnBreakerClosed(ctx context.Context)
}

// Breaker is the global circuit breaker. Safe for concurrent use from
// multiple processes sharing the state store.
type Breaker struct {
	store   statestore.Store
	key     string
	ttl     time.Duration
	orch    JobOrchestrator
	cascade CampaignCascade
	alerter alerting.Alerter
	log     *zap.SugaredLogger
	now     func() time.Time
}

// Option configures optional breaker collaborators
type Option func(*Breaker)

// WithOrchestrator wires the bulk job pause/resume cascade
func WithOrchestrator(orch JobOrchestrator) Option {
	return func(b *Breaker) { b.orch = orch }
}

// WithCampaignCascade wires campaign-level pause propagation
func WithCampaignCascade(c CampaignCascade) Option {
	return func(b *Breaker) { b.cascade = c }
}

// WithAlerter wires breaker event alerting
func WithAlerter(a alerting.Alerter) Option {
	return func(b *Breaker) { b.alerter = a }
}

// WithTTL overrides the soft expiry on the persisted record
func WithTTL(ttl time.Duration) Option {
	return func(b *Breaker) { b.ttl = ttl }
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New creates a breaker persisting state under key in the shared store
func New(store statestore.Store, key string, log *zap.SugaredLogger, opts ...Option) *Breaker {
	b := &Breaker{
		store: store,
		key:   key,
		ttl:   DefaultTTL,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// load reads the persisted record along with its raw bytes (for CAS).
// Absence of the key yields a CLOSED record with nil raw.
func (b *Breaker) load(ctx context.Context) (*Record, []byte, error) {
	raw, err := b.store.Get(ctx, b.key)
	if errors.Is(err, statestore.ErrKeyMissing) {
		return &Record{State: StateClosed}, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode breaker record")
	}
	return &rec, raw, nil
}

// State returns the current breaker state. Store errors fail open to
// CLOSED: a storage outage must not itself block traffic indefinitely.
// This is a deliberate availability-over-safety asymmetry.
func (b *Breaker) State(ctx context.Context) State {
	rec, _, err := b.load(ctx)
	if err != nil {
		b.log.Warnw("Failed to read breaker state, failing open to closed", "error", err)
		return StateClosed
	}
	return rec.State
}

// ShouldAllowRequest reports whether third-party calls (and campaign starts)
// are currently permitted.
func (b *Breaker) ShouldAllowRequest(ctx context.Context) bool {
	return b.State(ctx) == StateClosed
}

// Snapshot returns the persisted record for status reporting
func (b *Breaker) Snapshot(ctx context.Context) (*Record, error) {
	rec, _, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordFailure reports a third-party failure. The first failure while
// CLOSED atomically transitions the breaker to OPEN and triggers exactly one
// pause cascade; failures while already OPEN merely refresh metadata.
//
// Two processes racing on the same transition are resolved by compare-and-
// swap: the loser re-reads, observes the already-open state, and degrades to
// a metadata refresh, so the cascade runs once.
func (b *Breaker) RecordFailure(ctx context.Context, message, kind string) (*Outcome, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		rec, raw, err := b.load(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read breaker state")
		}

		now := b.now()
		if rec.State == StateOpen {
			// Already open: refresh metadata only, no second cascade.
			b.mergeFailureMetadata(rec, message, kind, now)
			swapped, err := b.swap(ctx, raw, rec)
			if err != nil {
				return nil, err
			}
			if !swapped {
				// The record changed underneath the refresh; decide again
				// from the current state.
				continue
			}
			return &Outcome{Transitioned: false, Reason: "already open"}, nil
		}

		opened := &Record{
			State:    StateOpen,
			OpenedAt: &now,
			Metadata: map[string]interface{}{
				"last_error": message,
				"error_type": kind,
				"failed_at":  now.UTC().Format(time.RFC3339),
			},
		}
		swapped, err := b.swap(ctx, raw, opened)
		if err != nil {
			return nil, err
		}
		if !swapped {
			b.log.Infow("Lost breaker open race, re-reading", "error_type", kind)
			continue
		}

		b.log.Errorw("Circuit breaker opened",
			"error_type", kind,
			"message", message)

		outcome := &Outcome{Transitioned: true}
		b.runOpenCascade(ctx, message, outcome)
		b.alert(ctx, alerting.Event{
			Kind:   alerting.KindBreakerOpened,
			Reason: message,
			At:     now,
			Fields: map[string]interface{}{
				"error_type":    kind,
				"jobs_affected": outcome.JobsAffected,
			},
		})
		return outcome, nil
	}
	return nil, errors.Newf("breaker record contended beyond %d attempts", maxSwapAttempts)
}

// runOpenCascade pauses jobs then campaigns. Cascade errors are recorded on
// the outcome's reason but do not unwind the breaker transition: the breaker
// is already open and a partial cascade will be completed by a manual
// pause-jobs invocation.
func (b *Breaker) runOpenCascade(ctx context.Context, message string, outcome *Outcome) {
	if b.orch != nil {
		paused, err := b.orch.PauseAllActiveJobs(ctx, message)
		outcome.JobsAffected = paused
		if err != nil {
			b.log.Errorw("Job pause cascade failed", "paused_before_failure", paused, "error", err)
			outcome.Reason = "pause cascade incomplete: " + err.Error()
		}
	}
	if b.cascade != nil {
		eligible, paused, err := b.cascade.OnBreakerOpened(ctx, message)
		outcome.CampaignsEligible = eligible
		outcome.CampaignsPaused = paused
		if err != nil {
			b.log.Errorw("Campaign pause cascade failed", "error", err)
		}
	}
}

// RecordSuccess updates last_success metadata only. It never changes state:
// an open breaker stays open no matter how many successes are recorded. The
// merge is applied to a freshly read record under compare-and-swap, so a
// success cannot overwrite a transition won by a concurrent writer.
func (b *Breaker) RecordSuccess(ctx context.Context) error {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		rec, raw, err := b.load(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to read breaker state")
		}

		if rec.Metadata == nil {
			rec.Metadata = make(map[string]interface{})
		}
		rec.Metadata["last_success"] = b.now().UTC().Format(time.RFC3339)

		swapped, err := b.swap(ctx, raw, rec)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return errors.Newf("breaker record contended beyond %d attempts", maxSwapAttempts)
}

// ManuallyClose is the only operation that can transition OPEN -> CLOSED.
// It triggers the bulk job resume cascade. Campaigns are deliberately left
// paused: their recovery is a separate, explicit operator action.
// Returns an untransitioned outcome if the breaker is already closed.
func (b *Breaker) ManuallyClose(ctx context.Context, reason string) (*Outcome, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		rec, raw, err := b.load(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read breaker state")
		}

		if rec.State == StateClosed {
			return &Outcome{Transitioned: false, Reason: "already closed"}, nil
		}

		now := b.now()
		closed := &Record{
			State:    StateClosed,
			OpenedAt: rec.OpenedAt,
			ClosedAt: &now,
			Metadata: map[string]interface{}{
				"closed_by":    "manual",
				"close_reason": reason,
			},
		}
		swapped, err := b.swap(ctx, raw, closed)
		if err != nil {
			return nil, err
		}
		if !swapped {
			// A metadata refresh or a concurrent close moved the record;
			// re-read and decide again.
			continue
		}

		b.log.Infow("Circuit breaker manually closed", "reason", reason)

		outcome := &Outcome{Transitioned: true}
		if b.orch != nil {
			resumed, err := b.orch.ResumeAllPausedJobs(ctx)
			outcome.JobsAffected = resumed
			if err != nil {
				b.log.Errorw("Job resume cascade failed", "resumed_before_failure", resumed, "error", err)
				outcome.Reason = "resume cascade incomplete: " + err.Error()
			}
		}
		if b.cascade != nil {
			b.cascade.OnBreakerClosed(ctx)
		}

		b.alert(ctx, alerting.Event{
			Kind:   alerting.KindBreakerClosed,
			Reason: reason,
			At:     now,
			Fields: map[string]interface{}{
				"jobs_resumed": outcome.JobsAffected,
			},
		})
		return outcome, nil
	}
	return nil, errors.Newf("breaker record contended beyond %d attempts", maxSwapAttempts)
}

func (b *Breaker) mergeFailureMetadata(rec *Record, message, kind string, now time.Time) {
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]interface{})
	}
	rec.Metadata["last_error"] = message
	rec.Metadata["error_type"] = kind
	rec.Metadata["failed_at"] = now.UTC().Format(time.RFC3339)
}

// swap writes rec with compare-and-swap against the raw bytes previously
// read alongside it. All breaker writes go through here; a plain set could
// erase a transition written between the caller's read and its write.
func (b *Breaker) swap(ctx context.Context, raw []byte, rec *Record) (bool, error) {
	next, err := json.Marshal(rec)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode breaker record")
	}
	swapped, err := b.store.CompareAndSwap(ctx, b.key, raw, next, b.ttl)
	if err != nil {
		return false, errors.Wrap(err, "failed to persist breaker record")
	}
	return swapped, nil
}

// alert notifies the alerter, if configured. Alerting failures never affect
// breaker state; implementations are required not to block or return errors.
func (b *Breaker) alert(ctx context.Context, event alerting.Event) {
	if b.alerter == nil {
		return
	}
	b.alerter.Notify(ctx, event)
}
