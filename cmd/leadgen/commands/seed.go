package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekemper/leadgen/campaign"
	"github.com/ekemper/leadgen/job"
)

// SeedCmd populates the database with demo campaigns and jobs
var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with demo campaigns and jobs",
	Long: `Populate the database with demo campaigns and jobs.

Each campaign is created in running state with a mix of fetch and
enrich jobs. Every job gets a task submitted onto the shared queue so
a running service picks it up immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		campaigns, _ := cmd.Flags().GetInt("campaigns")
		jobsPer, _ := cmd.Flags().GetInt("jobs")

		st, cleanup, err := openFullStack()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := context.Background()
		for i := 0; i < campaigns; i++ {
			c := campaign.New(fmt.Sprintf("Demo campaign %d", i+1))
			c.Start("Campaign started")
			if err := st.campaigns.Create(ctx, c); err != nil {
				return err
			}

			for n := 0; n < jobsPer; n++ {
				jobType := job.TypeFetch
				if n%2 == 1 {
					jobType = job.TypeEnrich
				}
				j := job.New(fmt.Sprintf("%s job %d", jobType, n+1), jobType, c.ID)

				handle, err := st.runtime.Submit(ctx, j.ID, j.Type, j.CampaignID)
				if err != nil {
					return err
				}
				j.AssignHandle(handle)
				if err := st.jobs.Create(ctx, j); err != nil {
					return err
				}
			}
			fmt.Printf("Created campaign %q with %d job(s)\n", c.Name, jobsPer)
		}

		fmt.Printf("Seeded %d campaign(s)\n", campaigns)
		return nil
	},
}

func init() {
	SeedCmd.Flags().Int("campaigns", 2, "Number of demo campaigns to create")
	SeedCmd.Flags().Int("jobs", 5, "Number of jobs per campaign")
}
