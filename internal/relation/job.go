package relation

import (
	"context"
	"time"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	domain "oidworker/internal/domain/relation"
	"oidworker/internal/session"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Sessions reports per-symbol session state
type Sessions interface {
	Symbols(at time.Time) []session.SymbolState
}

// Recorder writes job runs to the audit log
type Recorder interface {
	Record(ctx context.Context, run *jobrun.Run) error
}

// Sink receives every persisted snapshot. Sinks are best-effort.
type Sink interface {
	Name() string
	RelationSaved(ctx context.Context, snapshot *domain.Snapshot) error
}

// Job computes and stores one relation snapshot per anchor
type Job struct {
	ticks     market.Repository
	snapshots domain.Repository
	sessions  Sessions
	runs      Recorder
	sinks     []Sink
	loc       *time.Location
	now       func() time.Time
	log       *logger.Logger
}

// NewJob creates the relation job. loc is the reporting timezone for *_bkk fields.
func NewJob(ticks market.Repository, snapshots domain.Repository, sessions Sessions, runs Recorder, loc *time.Location, sinks ...Sink) *Job {
	return &Job{
		ticks:     ticks,
		snapshots: snapshots,
		sessions:  sessions,
		runs:      runs,
		sinks:     sinks,
		loc:       loc,
		now:       time.Now,
		log:       logger.Get().With("component", "relation_job"),
	}
}

func (j *Job) Name() jobrun.JobName {
	return jobrun.JobRelation
}

// Run executes the job for anchor and records exactly one job run.
// The returned error is non-nil only when that record could not be written.
func (j *Job) Run(ctx context.Context, anchor time.Time) error {
	started := j.now()
	anchorUTC := anchor.UTC().Truncate(time.Minute)

	states := j.sessions.Symbols(anchorUTC)
	open := make(map[market.Symbol]bool, len(states))
	openSymbols := make([]string, 0, len(states))
	closedSymbols := make([]string, 0, len(states))
	for _, st := range states {
		open[st.Symbol] = st.Open
		if st.Open {
			openSymbols = append(openSymbols, string(st.Symbol))
		} else {
			closedSymbols = append(closedSymbols, string(st.Symbol))
		}
	}

	if len(openSymbols) < 2 {
		j.log.Infow("Relation run skipped",
			"reason", jobrun.ReasonRelationMarketClosed,
			"open", openSymbols,
			"closed", closedSymbols,
		)
		return j.record(ctx, jobrun.StatusSkipped, started, jobrun.Metadata{
			"reason":         jobrun.ReasonRelationMarketClosed,
			"open_symbols":   openSymbols,
			"closed_symbols": closedSymbols,
			"sessions":       states,
		}, nil)
	}

	snapshot, points, err := j.compute(ctx, anchorUTC, open)
	if err != nil {
		j.log.Errorw("Relation job failed", "anchor", anchorUTC, "step", jobrun.FailedStep(err), "error", err)
		return j.record(ctx, jobrun.StatusFailed, started, jobrun.Metadata{}, err)
	}

	for _, sink := range j.sinks {
		if err := sink.RelationSaved(ctx, snapshot); err != nil {
			j.log.Warnw("Relation sink failed", "sink", sink.Name(), "error", err)
		}
	}

	j.log.Infow("Relation snapshot saved",
		"anchor", anchorUTC,
		"points", points,
		"degraded", snapshot.QualityFlags.DegradedSymbols,
		"duration", j.now().Sub(started),
	)

	return j.record(ctx, jobrun.StatusSuccess, started, jobrun.Metadata{
		"anchor_time_bkk":     anchor.In(j.loc).Format(time.RFC3339),
		"points":              points,
		"degraded_symbols":    snapshot.QualityFlags.DegradedSymbols,
		"pair_aligned_points": snapshot.QualityFlags.PairAlignedPoints,
	}, nil)
}

func (j *Job) compute(ctx context.Context, anchorUTC time.Time, open map[market.Symbol]bool) (*domain.Snapshot, int, error) {
	ticks, err := j.ticks.ListTicks(ctx, anchorUTC.Add(-Window), anchorUTC)
	if err != nil {
		return nil, 0, jobrun.Step("load ticks", err)
	}

	snapshot := Compute(Input{Anchor: anchorUTC, Ticks: ticks, Open: open})
	snapshot.AnchorTime = snapshot.AnchorTime.In(j.loc)
	snapshot.WindowStart = snapshot.WindowStart.In(j.loc)
	snapshot.WindowEnd = snapshot.WindowEnd.In(j.loc)

	if err := j.snapshots.Upsert(ctx, &snapshot); err != nil {
		return nil, 0, jobrun.Step("upsert relation snapshot", err)
	}
	return &snapshot, len(ticks), nil
}

func (j *Job) record(ctx context.Context, status jobrun.Status, started time.Time, meta jobrun.Metadata, runErr error) error {
	finished := j.now()
	meta["duration_ms"] = max(int64(0), finished.Sub(started).Milliseconds())

	run := jobrun.NewRun(jobrun.JobRelation, status, started, finished, meta).WithError(runErr)
	if err := j.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		return errors.Wrapf(err, "record %s run", status)
	}
	return nil
}
