package jobrun

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobName is the persisted name of a managed job
type JobName string

const (
	JobRelation  JobName = "relation_30m"
	JobOptions   JobName = "cme_30m"
	JobRetention JobName = "retention_cleanup"
)

// Jobs lists every managed job
var Jobs = []JobName{JobRelation, JobOptions, JobRetention}

func (j JobName) String() string {
	return string(j)
}

// Status is the terminal state of a run
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Source says what triggered a run
type Source string

const (
	SourceCron   Source = "cron"
	SourceRunNow Source = "run_now"
)

// Well-known skip reasons
const (
	ReasonOverlap              = "overlap_in_progress"
	ReasonLockHeld             = "lock_held_elsewhere"
	ReasonRelationMarketClosed = "relation_market_closed_or_insufficient_open_symbols"
	ReasonVenueSessionClosed   = "cme_session_closed"
	ReasonMissingLink          = "missing_link_for_trade_date"
	ReasonLinkNotUpdated       = "link_not_updated_post_cutover"
)

// Metadata is free-form run diagnostics stored as JSON
type Metadata map[string]interface{}

// Reason returns the "reason" entry, or "" when absent
func (m Metadata) Reason() string {
	if m == nil {
		return ""
	}
	r, _ := m["reason"].(string)
	return r
}

// Run is one row of the append-only job audit log
type Run struct {
	ID           uuid.UUID `db:"id" json:"id"`
	JobName      JobName   `db:"job_name" json:"job_name"`
	Status       Status    `db:"status" json:"status"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
	Metadata     Metadata  `db:"-" json:"metadata"`
	ErrorMessage *string   `db:"error_message" json:"error_message"`
}

// Duration returns the wall-clock length of the run
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun builds a run record with a fresh id
func NewRun(job JobName, status Status, startedAt, finishedAt time.Time, meta Metadata) *Run {
	if meta == nil {
		meta = Metadata{}
	}
	return &Run{
		ID:         uuid.New(),
		JobName:    job,
		Status:     status,
		StartedAt:  startedAt.UTC(),
		FinishedAt: finishedAt.UTC(),
		Metadata:   meta,
	}
}

// StepError marks the job step an error came from without changing its message
type StepError struct {
	Step string
	Err  error
}

// Step tags err with the step that produced it. Nil stays nil.
func Step(step string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, Err: err}
}

func (e *StepError) Error() string { return e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step recorded on err, or "" when there is none
func FailedStep(err error) string {
	var step *StepError
	if errors.As(err, &step) {
		return step.Step
	}
	return ""
}

// WithError sets the error message from err. A StepError also sets metadata "failed_step".
func (r *Run) WithError(err error) *Run {
	if err == nil {
		return r
	}
	msg := err.Error()
	r.ErrorMessage = &msg

	if step := FailedStep(err); step != "" {
		if r.Metadata == nil {
			r.Metadata = Metadata{}
		}
		r.Metadata["failed_step"] = step
	}
	return r
}
