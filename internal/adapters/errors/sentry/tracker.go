package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

// Tracker reports errors and failed job runs to Sentry
type Tracker struct {
	hub          *sentry.Hub
	flushTimeout time.Duration
}

var (
	_ errors.Tracker  = (*Tracker)(nil)
	_ jobrun.Observer = (*Tracker)(nil)
)

// New initialises the global Sentry client and binds the tracker to its hub
func New(dsn string, environment string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, errors.Wrap(err, "sentry init")
	}

	return &Tracker{
		hub:          sentry.CurrentHub(),
		flushTimeout: 2 * time.Second,
	}, nil
}

func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.CaptureException(err)
	return nil
}

func (t *Tracker) Name() string { return "sentry" }

// RunRecorded captures failed runs as events grouped by job name
func (t *Tracker) RunRecorded(ctx context.Context, run *jobrun.Run) error {
	if run.Status != jobrun.StatusFailed {
		return nil
	}

	msg := "job failed without error message"
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		msg = *run.ErrorMessage
	}

	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("job", string(run.JobName))
		scope.SetFingerprint([]string{"job_run_failed", string(run.JobName)})
		scope.SetContext("job_run", sentry.Context{
			"id":          run.ID.String(),
			"started_at":  run.StartedAt.UTC().Format(time.RFC3339),
			"duration_ms": run.Duration().Milliseconds(),
			"metadata":    map[string]interface{}(run.Metadata),
		})
	})
	hub.CaptureException(errors.Newf("%s: %s", run.JobName, msg))
	return nil
}

// Flush waits for pending events, bounded by ctx and the tracker's own timeout
func (t *Tracker) Flush(ctx context.Context) error {
	timeout := t.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if !sentry.Flush(timeout) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}
