package taskrt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekemper/leadgen/breaker"
	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/statestore"
)

// Handler executes the third-party work for one job type
type Handler interface {
	Execute(ctx context.Context, j *job.Job) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, j *job.Job) error

func (f HandlerFunc) Execute(ctx context.Context, j *job.Job) error {
	return f(ctx, j)
}

// FailureGate is the breaker surface the pool reports to: it gates execution
// and receives per-call failure/success reports.
type FailureGate interface {
	ShouldAllowRequest(ctx context.Context) bool
	RecordFailure(ctx context.Context, message, kind string) (*breaker.Outcome, error)
	RecordSuccess(ctx context.Context) error
}

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers      int           `json:"workers"`
	Queue        string        `json:"queue"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:      1,
		Queue:        "leadgen:tasks",
		PollInterval: 5 * time.Second,
	}
}

// Pool consumes task envelopes from the shared queue and executes the
// registered handler for each job type. Handler failures are reported to
// the failure gate, which opens the global breaker.
type Pool struct {
	store     statestore.Store
	jobs      *job.Store
	gate      FailureGate
	config    PoolConfig
	handlers  map[job.Type]Handler
	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *zap.SugaredLogger
	mu        sync.Mutex
}

// NewPool creates a worker pool. Callers must register handlers before
// calling Start().
func NewPool(ctx context.Context, store statestore.Store, jobs *job.Store, gate FailureGate, cfg PoolConfig, log *zap.SugaredLogger) *Pool {
	poolCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		store:     store,
		jobs:      jobs,
		gate:      gate,
		config:    cfg,
		handlers:  make(map[job.Type]Handler),
		parentCtx: ctx,
		ctx:       poolCtx,
		cancel:    cancel,
		log:       log.Named("taskrt"),
	}
}

// Register installs the handler for a job type
func (p *Pool) Register(jobType job.Type, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = h
}

// Start begins consuming tasks with the configured number of workers
func (p *Pool) Start() {
	p.mu.Lock()
	// Recreate the context if a previous Stop() cancelled it
	select {
	case <-p.ctx.Done():
		p.ctx, p.cancel = context.WithCancel(p.parentCtx)
	default:
	}
	workers := p.config.Workers
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop gracefully stops the worker pool, waiting up to 30 seconds for
// in-flight work to finish.
func (p *Pool) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Infow("Worker pool stopped cleanly")
	case <-time.After(30 * time.Second):
		p.log.Warnw("Worker pool stop timed out; workers may still be finishing")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drain(id)
		}
	}
}

// drain processes envelopes until the queue is empty, so a burst of queued
// tasks does not wait one poll interval per envelope.
func (p *Pool) drain(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		processed, err := p.processNextTask()
		if err != nil {
			select {
			case <-p.ctx.Done():
			default:
				p.log.Errorw("Worker error processing task", "worker_id", id, "error", err)
			}
			return
		}
		if !processed {
			return
		}
	}
}

// processNextTask pops one envelope and executes it, reporting whether an
// envelope was consumed. Stale envelopes (job gone, job no longer pending,
// or handle superseded by a resume) are dropped: the orchestrator issues
// fresh handles whenever it resumes jobs.
func (p *Pool) processNextTask() (bool, error) {
	payload, err := p.store.Pop(p.ctx, p.config.Queue)
	if err != nil {
		return false, err
	}
	if payload == nil {
		return false, nil // queue empty
	}

	var task Task
	if err := json.Unmarshal(payload, &task); err != nil {
		p.log.Warnw("Dropping undecodable task envelope", "error", err)
		return true, nil
	}

	j, err := p.jobs.Get(p.ctx, task.JobID)
	if err != nil {
		p.log.Debugw("Dropping task for missing job", "job_id", task.JobID)
		return true, nil
	}
	if j.Status != job.StatusPending || j.TaskHandle != task.Handle {
		p.log.Debugw("Dropping stale task envelope",
			"job_id", j.ID,
			"job_status", j.Status,
			"envelope_handle", task.Handle)
		return true, nil
	}

	// Breaker open: leave the job pending. The pause cascade will pick it
	// up, and resume will issue a fresh envelope.
	if !p.gate.ShouldAllowRequest(p.ctx) {
		p.log.Debugw("Breaker open, deferring task", "job_id", j.ID)
		return true, nil
	}

	p.mu.Lock()
	handler, ok := p.handlers[j.Type]
	p.mu.Unlock()
	if !ok {
		j.Fail(errors.Newf("no handler registered for job type %s", j.Type))
		return true, p.jobs.Update(p.ctx, j)
	}

	j.Process(task.Handle)
	if err := p.jobs.Update(p.ctx, j); err != nil {
		return true, err
	}

	if err := handler.Execute(p.ctx, j); err != nil {
		// Report to the breaker first so the pause cascade runs before
		// this job's own FAILED write races with it.
		if _, gateErr := p.gate.RecordFailure(p.ctx, err.Error(), string(j.Type)); gateErr != nil {
			p.log.Errorw("Failed to record breaker failure", "job_id", j.ID, "error", gateErr)
		}
		j.Fail(err)
		return true, p.jobs.Update(p.ctx, j)
	}

	if err := p.gate.RecordSuccess(p.ctx); err != nil {
		p.log.Warnw("Failed to record breaker success", "job_id", j.ID, "error", err)
	}
	j.Complete()
	return true, p.jobs.Update(p.ctx, j)
}
