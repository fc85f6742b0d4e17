package jobrun

import (
	"context"
	"time"

	"github.com/google/uuid"

	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Observer is notified after a run has been persisted.
// Observers are best-effort: their errors are logged, never returned.
type Observer interface {
	Name() string
	RunRecorded(ctx context.Context, run *Run) error
}

// Service writes the audit log and fans recorded runs out to observers
type Service struct {
	repo      Repository
	observers []Observer
	log       *logger.Logger
}

// NewService constructs a job run service.
func NewService(repo Repository, observers ...Observer) *Service {
	return &Service{
		repo:      repo,
		observers: observers,
		log:       logger.Get().With("component", "jobrun_service"),
	}
}

// AddObserver registers an observer. Not safe for use once jobs are running.
func (s *Service) AddObserver(o Observer) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// Record validates and inserts run, then notifies observers
func (s *Service) Record(ctx context.Context, run *Run) error {
	if run == nil || run.JobName == "" || run.Status == "" {
		return errors.ErrInvalidInput
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	if run.Metadata == nil {
		run.Metadata = Metadata{}
	}

	if err := s.repo.Insert(ctx, run); err != nil {
		return errors.Wrap(err, "insert job run")
	}

	for _, o := range s.observers {
		if err := o.RunRecorded(ctx, run); err != nil {
			s.log.Warnw("Job run observer failed",
				"observer", o.Name(),
				"job", run.JobName,
				"status", run.Status,
				"error", err,
			)
		}
	}
	return nil
}

// Recent returns the newest runs first
func (s *Service) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return nil, errors.ErrInvalidInput
	}
	runs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent job runs")
	}
	return runs, nil
}

// LatestByJob keeps the first (newest) run per job name from runs ordered newest first
func LatestByJob(runs []Run) map[JobName]Run {
	latest := make(map[JobName]Run, len(Jobs))
	for _, r := range runs {
		if _, ok := latest[r.JobName]; !ok {
			latest[r.JobName] = r
		}
	}
	return latest
}
