package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekemper/leadgen/logger"
	"github.com/ekemper/leadgen/statestore"
)

// BreakerCmd inspects and controls the global circuit breaker
var BreakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect and control the global circuit breaker",
	Long: `Inspect and control the global circuit breaker.

The breaker is binary: OPEN blocks all third-party work, CLOSED permits
it. It never closes on its own - an operator must close it after
confirming the underlying outage is resolved.

Examples:
  leadgen breaker status                  # Show current state
  leadgen breaker open -r "apollo outage" # Open and pause all work
  leadgen breaker close -r "outage over"  # Close and resume jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var breakerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show breaker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, cleanup, err := openFullStack()
		if err != nil {
			return err
		}
		defer cleanup()

		rec, err := st.breaker.Snapshot(context.Background())
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var breakerOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the breaker, pausing all active jobs and running campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			reason = "manually opened"
		}

		st, cleanup, err := openFullStack()
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := st.breaker.RecordFailure(context.Background(), reason, "manual")
		if err != nil {
			return err
		}
		if !outcome.Transitioned {
			fmt.Println("Breaker already open")
			return nil
		}
		fmt.Printf("Breaker opened: %d job(s) paused, %d/%d campaign(s) paused\n",
			outcome.JobsAffected, outcome.CampaignsPaused, outcome.CampaignsEligible)
		return nil
	},
}

var breakerCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Manually close the breaker, resuming paused jobs",
	Long: `Manually close the breaker and resume all paused jobs.

Paused campaigns are NOT resumed - each needs an explicit operator
resume once its jobs are healthy again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		st, cleanup, err := openFullStack()
		if err != nil {
			return err
		}
		defer cleanup()

		outcome, err := st.breaker.ManuallyClose(context.Background(), reason)
		if err != nil {
			return err
		}
		if !outcome.Transitioned {
			fmt.Println("Breaker already closed")
			return nil
		}
		fmt.Printf("Breaker closed: %d job(s) resumed\n", outcome.JobsAffected)
		fmt.Println("Paused campaigns remain paused; resume them individually once verified.")
		return nil
	},
}

// openFullStack wires the complete containment stack for one-shot CLI
// commands. The returned cleanup closes the database and state store.
func openFullStack() (*stack, func(), error) {
	cfg := loadedConfig

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStateStore(context.Background(), cfg)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if rs, ok := store.(*statestore.RedisStore); ok {
			rs.Close()
		}
		database.Close()
		logger.Cleanup()
	}

	if _, ok := store.(*statestore.MemoryStore); ok {
		fmt.Fprintln(os.Stderr, "Warning: no Redis configured; breaker state is process-local")
	}

	return buildStack(cfg, database, store), cleanup, nil
}

func init() {
	breakerOpenCmd.Flags().StringP("reason", "r", "", "Reason recorded with the transition")
	breakerCloseCmd.Flags().StringP("reason", "r", "", "Reason recorded with the transition")

	BreakerCmd.AddCommand(breakerStatusCmd)
	BreakerCmd.AddCommand(breakerOpenCmd)
	BreakerCmd.AddCommand(breakerCloseCmd)
}
