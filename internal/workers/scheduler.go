package workers

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// stopTimeout bounds how long Stop waits for in-flight jobs
const stopTimeout = 2 * time.Minute

// Trigger starts a job for the current anchor
type Trigger interface {
	Trigger(ctx context.Context, name jobrun.JobName, source jobrun.Source) error
}

// Scheduler fires jobs on cron specs evaluated in a fixed timezone
type Scheduler struct {
	cron    *cron.Cron
	trigger Trigger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	entries map[jobrun.JobName]cron.EntryID
	log     *logger.Logger
	started bool
}

// NewScheduler creates a scheduler evaluating specs in loc
func NewScheduler(trigger Trigger, loc *time.Location) *Scheduler {
	log := logger.Get().With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{log}),
		),
		trigger: trigger,
		entries: make(map[jobrun.JobName]cron.EntryID),
		log:     log,
	}
}

// Add schedules job on a standard five-field cron spec
func (s *Scheduler) Add(spec string, job jobrun.JobName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Wrapf(errors.ErrInternal, "cannot add %s after start", job)
	}
	if _, exists := s.entries[job]; exists {
		return errors.Wrapf(errors.ErrInvalidInput, "job %s already scheduled", job)
	}

	id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
	if err != nil {
		return errors.Wrapf(err, "invalid cron spec %q for %s", spec, job)
	}
	s.entries[job] = id
	s.log.Infow("Job scheduled", "job", job, "spec", spec)
	return nil
}

func (s *Scheduler) fire(job jobrun.JobName) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if err := s.trigger.Trigger(ctx, job, jobrun.SourceCron); err != nil {
		s.log.Errorw("Scheduled job failed", "job", job, "error", err)
	}
}

// Start begins firing scheduled jobs
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.Wrapf(errors.ErrInternal, "scheduler already started")
	}

	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Infow("Scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop stops firing new jobs and waits for running ones to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return errors.Wrapf(errors.ErrInternal, "scheduler not started")
	}
	s.started = false
	s.mu.Unlock()

	s.log.Info("Stopping scheduler...")
	done := s.cron.Stop()

	var err error
	select {
	case <-done.Done():
		s.log.Info("Scheduler stopped gracefully")
	case <-time.After(stopTimeout):
		s.log.Warn("Scheduler shutdown timed out")
		err = errors.Wrapf(errors.ErrTimeout, "scheduler shutdown after %s", stopTimeout)
	}

	// running jobs see cancellation only after the grace period
	s.cancel()
	return err
}

// Next returns the next fire time of each scheduled job
func (s *Scheduler) Next() map[jobrun.JobName]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[jobrun.JobName]time.Time, len(s.entries))
	for job, id := range s.entries {
		out[job] = s.cron.Entry(id).Next
	}
	return out
}

// IsRunning returns whether the scheduler is started
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// cronLogger routes cron's internal logs through zap
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
