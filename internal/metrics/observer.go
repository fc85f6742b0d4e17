package metrics

import (
	"context"

	"oidworker/internal/domain/jobrun"
)

// RunObserver feeds recorded job runs into the job metrics
type RunObserver struct{}

var _ jobrun.Observer = RunObserver{}

func (RunObserver) Name() string { return "prometheus" }

func (RunObserver) RunRecorded(ctx context.Context, run *jobrun.Run) error {
	reason := ""
	if run.Status == jobrun.StatusSkipped {
		reason = run.Metadata.Reason()
	}
	RecordJobRun(string(run.JobName), string(run.Status), reason, run.Duration(), run.FinishedAt)
	return nil
}
