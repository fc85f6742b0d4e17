// Package retention prunes rows that fell out of their per-table retention window.
package retention

import (
	"context"
	"sort"
	"sync"
	"time"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Store deletes rows whose column is strictly older than cutoff
type Store interface {
	DeleteBefore(ctx context.Context, table, column string, cutoff time.Time) (int64, error)
}

// Recorder writes job runs to the audit log
type Recorder interface {
	Record(ctx context.Context, run *jobrun.Run) error
}

// Windows holds retention windows in days
type Windows struct {
	StructuredDays  int
	JobRunsDays     int
	SeriesLinksDays int
	WebhookLogDays  int
}

// Rule prunes one table
type Rule struct {
	Table  string
	Column string
	Cutoff time.Time
}

// Rules returns the pruning rules evaluated at now
func (w Windows) Rules(now time.Time) []Rule {
	now = now.UTC()
	structured := daysBefore(now, w.StructuredDays)
	return []Rule{
		{Table: "price_ticks", Column: "event_time_utc", Cutoff: structured},
		{Table: "relation_snapshots_30m", Column: "anchor_time_utc", Cutoff: structured},
		{Table: "cme_snapshots", Column: "snapshot_time_utc", Cutoff: structured},
		{Table: "webhook_replay_guard", Column: "expires_at", Cutoff: now},
		{Table: "webhook_request_log", Column: "received_at", Cutoff: daysBefore(now, w.WebhookLogDays)},
		{Table: "job_runs", Column: "started_at", Cutoff: daysBefore(now, w.JobRunsDays)},
		{Table: "cme_series_links", Column: "trade_date_bkk", Cutoff: daysBefore(now, w.SeriesLinksDays)},
	}
}

func daysBefore(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

// Job runs every rule concurrently and records one run
type Job struct {
	store   Store
	runs    Recorder
	windows Windows
	now     func() time.Time
	log     *logger.Logger
}

func NewJob(store Store, runs Recorder, windows Windows) *Job {
	return &Job{
		store:   store,
		runs:    runs,
		windows: windows,
		now:     time.Now,
		log:     logger.Get().With("component", "retention_job"),
	}
}

func (j *Job) Name() jobrun.JobName {
	return jobrun.JobRetention
}

// Run prunes all tables. Any failed delete fails the run; the others still complete.
// The anchor is ignored: windows are always measured from the current time.
func (j *Job) Run(ctx context.Context, _ time.Time) error {
	started := j.now()
	rules := j.windows.Rules(started)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		merr    errors.MultiError
		deleted = make(map[string]int64, len(rules))
	)
	for _, rule := range rules {
		wg.Add(1)
		go func(rule Rule) {
			defer wg.Done()
			n, err := j.store.DeleteBefore(ctx, rule.Table, rule.Column, rule.Cutoff)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr.Add(errors.Wrapf(err, "prune %s", rule.Table))
				return
			}
			deleted[rule.Table] = n
		}(rule)
	}
	wg.Wait()

	meta := jobrun.Metadata{
		"structured_cutoff":   rules[0].Cutoff.Format(time.RFC3339),
		"webhook_log_cutoff":  rules[4].Cutoff.Format(time.RFC3339),
		"job_runs_cutoff":     rules[5].Cutoff.Format(time.RFC3339),
		"series_links_cutoff": rules[6].Cutoff.Format(time.DateOnly),
		"deleted":             deleted,
	}

	if err := merr.ToError(); err != nil {
		// stable message regardless of goroutine completion order
		sort.Slice(merr.Errors, func(a, b int) bool { return merr.Errors[a].Error() < merr.Errors[b].Error() })
		j.log.Errorw("Retention job failed", "failures", len(merr.Errors), "error", err)
		return j.record(ctx, jobrun.StatusFailed, started, meta, err)
	}

	j.log.Infow("Retention completed", "deleted", deleted, "duration", j.now().Sub(started))
	return j.record(ctx, jobrun.StatusSuccess, started, meta, nil)
}

func (j *Job) record(ctx context.Context, status jobrun.Status, started time.Time, meta jobrun.Metadata, runErr error) error {
	finished := j.now()
	meta["duration_ms"] = max(int64(0), finished.Sub(started).Milliseconds())

	run := jobrun.NewRun(jobrun.JobRetention, status, started, finished, meta).WithError(runErr)
	if err := j.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		return errors.Wrapf(err, "record %s run", status)
	}
	return nil
}
