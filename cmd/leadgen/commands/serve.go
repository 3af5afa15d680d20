package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/job"
	"github.com/ekemper/leadgen/logger"
	"github.com/ekemper/leadgen/server"
	"github.com/ekemper/leadgen/statestore"
	"github.com/ekemper/leadgen/taskrt"
)

// ServeCmd starts the leadgen service: HTTP API plus the local task
// worker pool.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the leadgen service",
	Long: `Start the leadgen service in foreground mode.

The service will:
- Serve the HTTP API (breaker, jobs, campaigns)
- Run the task worker pool against the shared queue
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadedConfig
		defer logger.Cleanup()

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store, err := openStateStore(ctx, cfg)
		if err != nil {
			return errors.Wrap(err, "failed to connect to state store")
		}
		if rs, ok := store.(*statestore.RedisStore); ok {
			defer rs.Close()
		}

		st := buildStack(cfg, database, store)

		var pool *taskrt.Pool
		if cfg.Runtime.Workers > 0 {
			poolCfg := taskrt.PoolConfig{
				Workers:      cfg.Runtime.Workers,
				Queue:        cfg.Runtime.Queue,
				PollInterval: time.Duration(cfg.Runtime.PollIntervalSeconds) * time.Second,
			}
			pool = taskrt.NewPool(ctx, store, st.jobs, st.breaker, poolCfg, logger.Logger)
			registerHandlers(pool)
			pool.Start()
		}

		srv := server.New(server.Config{
			Port:         cfg.Server.Port,
			Breaker:      st.breaker,
			Orchestrator: st.orchestrator,
			Campaigns:    st.campaigns,
			Jobs:         st.jobs,
			Validator:    st.validator,
			Dependencies: cfg.Breaker.Dependencies,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigChan:
		}

		logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("HTTP server shutdown failed", "error", err)
		}
		if pool != nil {
			pool.Stop()
		}

		logger.Info("leadgen stopped")
		return nil
	},
}

// registerHandlers wires a handler per job type. The handlers here are
// pipeline stages; each one's third-party calls report to the breaker
// through the pool's failure gate.
func registerHandlers(pool *taskrt.Pool) {
	pool.Register(job.TypeFetch, taskrt.HandlerFunc(func(ctx context.Context, j *job.Job) error {
		logger.Infow("Fetching leads", "job_id", j.ID, "campaign_id", j.CampaignID)
		return nil
	}))
	pool.Register(job.TypeEnrich, taskrt.HandlerFunc(func(ctx context.Context, j *job.Job) error {
		logger.Infow("Enriching leads", "job_id", j.ID, "campaign_id", j.CampaignID)
		return nil
	}))
	pool.Register(job.TypeCleanup, taskrt.HandlerFunc(func(ctx context.Context, j *job.Job) error {
		logger.Infow("Cleaning up stale records", "job_id", j.ID)
		return nil
	}))
}
