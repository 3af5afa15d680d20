package commands

import (
	"github.com/spf13/cobra"

	"github.com/ekemper/leadgen/config"
	"github.com/ekemper/leadgen/errors"
	"github.com/ekemper/leadgen/logger"
)

// RootCmd is the leadgen command entrypoint
var RootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "leadgen - lead generation pipeline with failure containment",
	Long: `leadgen - multi-tenant lead generation pipeline.

Campaigns own jobs; jobs run as asynchronous tasks against third-party
services (Apollo, OpenAI). A single global circuit breaker contains
third-party failures: the first failure opens it and pauses all active
work, and only a manual close resumes it.

Available commands:
  serve    - Start the leadgen service (HTTP API + task workers)
  breaker  - Inspect and control the global circuit breaker
  seed     - Populate the database with demo campaigns and jobs

Examples:
  leadgen serve                       # Start the service
  leadgen breaker status              # Show breaker state
  leadgen breaker close -r "fixed"    # Manually close an open breaker
  leadgen seed --campaigns 2 --jobs 5 # Create demo data`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := logger.Initialize(cfg.Logging.JSON); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		loadedConfig = cfg
		return nil
	},
}

// loadedConfig is populated by the root PersistentPreRunE before any
// subcommand runs.
var loadedConfig *config.Config

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(BreakerCmd)
	RootCmd.AddCommand(SeedCmd)
}
