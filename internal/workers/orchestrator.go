package workers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Recorder writes job runs to the audit log
type Recorder interface {
	Record(ctx context.Context, run *jobrun.Run) error
}

// Locker is an optional lock shared between replicas
type Locker interface {
	Acquire(ctx context.Context, job jobrun.JobName, owner string) (bool, error)
	Release(ctx context.Context, job jobrun.JobName, owner string) error
}

// Orchestrator runs jobs so that no job kind overlaps with itself
type Orchestrator struct {
	jobs    *Registry
	running *RunningSet
	runs    Recorder
	locker  Locker
	owner   string
	loc     *time.Location
	now     func() time.Time
	log     *logger.Logger
}

// NewOrchestrator creates an orchestrator. Anchors are minutes in loc.
func NewOrchestrator(jobs *Registry, runs Recorder, loc *time.Location) *Orchestrator {
	host, _ := os.Hostname()
	return &Orchestrator{
		jobs:    jobs,
		running: NewRunningSet(),
		runs:    runs,
		owner:   fmt.Sprintf("%s/%s", host, uuid.NewString()),
		loc:     loc,
		now:     time.Now,
		log:     logger.Get().With("component", "orchestrator"),
	}
}

// WithLocker layers a cross-replica lock under the in-process running set
func (o *Orchestrator) WithLocker(l Locker) *Orchestrator {
	o.locker = l
	return o
}

// Running returns the job names currently in flight
func (o *Orchestrator) Running() []string {
	return o.running.Names()
}

// Anchor returns the current minute in the schedule timezone
func (o *Orchestrator) Anchor() time.Time {
	return o.now().In(o.loc).Truncate(time.Minute)
}

// RunManaged invokes fn unless job is already running.
// An overlapping call records a skipped run and returns nil without calling fn.
func (o *Orchestrator) RunManaged(ctx context.Context, job jobrun.JobName, source jobrun.Source, fn func(ctx context.Context) error) (err error) {
	if !o.running.TryAcquire(job) {
		o.log.Warnw("Job already running, skipping", "job", job, "source", source)
		o.recordSkip(ctx, job, source, jobrun.ReasonOverlap)
		return nil
	}
	defer o.running.Release(job)

	if o.locker != nil {
		acquired, lockErr := o.locker.Acquire(ctx, job, o.owner)
		switch {
		case lockErr != nil:
			o.log.Warnw("Job lock unavailable, relying on local overlap guard", "job", job, "error", lockErr)
		case !acquired:
			o.log.Warnw("Job running on another replica, skipping", "job", job, "source", source)
			o.recordSkip(ctx, job, source, jobrun.ReasonLockHeld)
			return nil
		default:
			defer func() {
				if err := o.locker.Release(context.WithoutCancel(ctx), job, o.owner); err != nil {
					o.log.Warnw("Failed to release job lock", "job", job, "error", err)
				}
			}()
		}
	}

	started := o.now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("Job panicked", "job", job, "panic", r)
			err = errors.Newf("job %s panicked: %v", job, r)
			run := jobrun.NewRun(job, jobrun.StatusFailed, started, o.now(), jobrun.Metadata{"source": source}).WithError(err)
			if recErr := o.runs.Record(context.WithoutCancel(ctx), run); recErr != nil {
				o.log.Warnw("Failed to record panicked run", "job", job, "error", recErr)
			}
		}
	}()

	o.log.Infow("Job started", "job", job, "source", source)
	err = fn(ctx)
	o.log.Infow("Job finished", "job", job, "source", source, "duration", o.now().Sub(started), "error", err)
	return err
}

func (o *Orchestrator) recordSkip(ctx context.Context, job jobrun.JobName, source jobrun.Source, reason string) {
	now := o.now()
	run := jobrun.NewRun(job, jobrun.StatusSkipped, now, now, jobrun.Metadata{
		"reason": reason,
		"source": source,
	})
	if err := o.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		o.log.Warnw("Failed to record skipped run", "job", job, "reason", reason, "error", err)
	}
}

// Trigger runs a registered job for the current anchor minute
func (o *Orchestrator) Trigger(ctx context.Context, name jobrun.JobName, source jobrun.Source) error {
	return o.trigger(ctx, name, source, o.Anchor())
}

func (o *Orchestrator) trigger(ctx context.Context, name jobrun.JobName, source jobrun.Source, anchor time.Time) error {
	job, ok := o.jobs.Get(name)
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "job %s", name)
	}
	return o.RunManaged(ctx, name, source, func(ctx context.Context) error {
		return job.Run(ctx, anchor)
	})
}

// RunNow runs an on-demand target synchronously.
// With "both", relation runs first and the options job runs even if relation failed.
// Cancelling ctx does not stop the run; only its values are kept.
func (o *Orchestrator) RunNow(ctx context.Context, target string) error {
	names, err := Resolve(target)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	anchor := o.Anchor()
	var merr errors.MultiError
	for _, name := range names {
		merr.Add(o.trigger(ctx, name, jobrun.SourceRunNow, anchor))
	}
	return merr.ToError()
}

// RunOnce runs the named jobs sequentially for the current anchor, as a one-shot tool would
func (o *Orchestrator) RunOnce(ctx context.Context, names ...jobrun.JobName) error {
	anchor := o.Anchor()
	var merr errors.MultiError
	for _, name := range names {
		merr.Add(o.trigger(ctx, name, jobrun.SourceRunNow, anchor))
	}
	return merr.ToError()
}
