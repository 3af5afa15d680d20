package commands

import (
	"context"
	"database/sql"
	"time"

	"github.com/ekemper/leadgen/alerting"
	"github.com/ekemper/leadgen/breaker"
	"github.com/ekemper/leadgen/campaign"
	"github.com/ekemper/leadgen/config"
	"github.com/ekemper/leadgen/db"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/logger"
	"github.com/ekemper/leadgen/orchestrator"
	"github.com/ekemper/leadgen/statestore"
	"github.com/ekemper/leadgen/taskrt"
)

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// openStateStore connects to Redis when configured, otherwise falls back
// to the in-process memory store for single-node use.
func openStateStore(ctx context.Context, cfg *config.Config) (statestore.Store, error) {
	if cfg.Redis.Addr == "" {
		logger.Infow("No Redis address configured, using in-process state store")
		return statestore.NewMemoryStore(), nil
	}
	return statestore.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}

// stack holds the fully wired containment components.
type stack struct {
	jobs         *job.Store
	campaigns    *campaign.Store
	orchestrator *orchestrator.Orchestrator
	breaker      *breaker.Breaker
	runtime      *taskrt.QueueRuntime
	validator    *campaign.StartValidator
}

// buildStack wires the breaker, orchestrator and coordinator together.
// The breaker drives the orchestrator (job cascade) and the coordinator
// (campaign cascade); the orchestrator notifies the coordinator of each
// job status change it commits.
func buildStack(cfg *config.Config, database *sql.DB, store statestore.Store) *stack {
	jobs := job.NewStore(database)
	campaigns := campaign.NewStore(database)
	coordinator := campaign.NewCoordinator(campaigns, cfg.Breaker.Dependencies, logger.Logger)

	runtime := taskrt.NewQueueRuntime(store, cfg.Runtime.Queue)
	orch := orchestrator.New(jobs, runtime, logger.Logger,
		orchestrator.WithChunkSize(cfg.Orchestrator.ChunkSize),
		orchestrator.WithSubmitAttempts(cfg.Orchestrator.SubmitAttempts),
		orchestrator.WithObserver(coordinator),
	)

	var alerter alerting.Alerter = alerting.NewLogAlerter(logger.Logger)
	if cfg.Alerting.WebhookURL != "" {
		alerter = alerting.Multi{
			alerter,
			alerting.NewWebhookAlerter(cfg.Alerting.WebhookURL, cfg.Alerting.AlertsPerMinute, logger.Logger),
		}
	}

	brk := breaker.New(store, cfg.Breaker.Key, logger.Logger,
		breaker.WithOrchestrator(orch),
		breaker.WithCampaignCascade(coordinator),
		breaker.WithAlerter(alerter),
		breaker.WithTTL(time.Duration(cfg.Breaker.TTLHours)*time.Hour),
	)

	gates := make(map[string]campaign.Gate, len(cfg.Breaker.Dependencies))
	for _, dep := range cfg.Breaker.Dependencies {
		gates[dep] = brk
	}

	return &stack{
		jobs:         jobs,
		campaigns:    campaigns,
		orchestrator: orch,
		breaker:      brk,
		runtime:      runtime,
		validator:    campaign.NewStartValidator(gates),
	}
}
