package main

import (
	"github.com/spf13/cobra"

	"oidworker/internal/bootstrap"
	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

// runOnceTargets maps CLI targets to managed jobs, in execution order
var runOnceTargets = map[string][]jobrun.JobName{
	"relation":  {jobrun.JobRelation},
	"cme":       {jobrun.JobOptions},
	"retention": {jobrun.JobRetention},
	"all":       {jobrun.JobRelation, jobrun.JobOptions, jobrun.JobRetention},
}

func newRunOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run-once [relation|cme|retention|all]",
		Short:     "Run jobs once for the current anchor and exit",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"relation", "cme", "retention", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}
			names, ok := runOnceTargets[target]
			if !ok {
				return errors.Wrapf(errors.ErrInvalidInput, "unknown target %q: use relation, cme, retention or all", target)
			}

			c := bootstrap.NewContainer()
			c.MustInitCore()
			defer c.Close()

			if err := c.Jobs.Orchestrator.RunOnce(cmd.Context(), names...); err != nil {
				c.Log.Errorw("Run-once failed", "target", target, "error", err)
				return err
			}
			c.Log.Infow("Run-once complete", "target", target, "jobs", names)
			return nil
		},
	}
}
