package main

import (
	"time"

	"github.com/spf13/cobra"

	"oidworker/internal/bootstrap"
	"oidworker/internal/sanity"
)

func newSanityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanity",
		Short: "Print the latest job runs, snapshots, prices, deltas and symbol sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := bootstrap.NewContainer()
			c.MustInitCore()
			defer c.Close()

			report, err := sanity.Collect(cmd.Context(), sanity.Sources{
				Runs:     c.Services.JobRuns,
				Options:  c.Repos.Options,
				Relation: c.Repos.Relation,
				Ticks:    c.Repos.Ticks,
				Sessions: c.Services.Calendar,
			}, time.Now().UTC())
			if err != nil {
				return err
			}
			return report.Render(cmd.OutOrStdout())
		},
	}
}
