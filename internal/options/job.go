package options

import (
	"context"
	"fmt"
	"time"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	domain "oidworker/internal/domain/options"
	"oidworker/internal/retry"
	"oidworker/internal/session"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// ReferenceSymbol is the underlying whose price is stamped on every snapshot
const ReferenceSymbol = market.XAUUSD

// Gate decides whether extraction may run at an instant
type Gate interface {
	ExtractionAllowed(ctx context.Context, at time.Time) (session.Decision, error)
}

// Recorder writes job runs to the audit log
type Recorder interface {
	Record(ctx context.Context, run *jobrun.Run) error
}

// Sink receives every persisted snapshot with its bars. Sinks are best-effort.
type Sink interface {
	Name() string
	OptionsSaved(ctx context.Context, snapshot *domain.Snapshot, bars []domain.StrikeBar) error
}

// Config controls extraction retries
type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	// Timeout bounds a single extraction attempt; zero means no extra bound
	Timeout time.Duration
}

// ViewDiagnostic summarizes one processed view in job run metadata
type ViewDiagnostic struct {
	View           domain.ViewType `json:"view"`
	Series         string          `json:"series"`
	ExpirationDate *string         `json:"expiration_date"`
	DTE            *float64        `json:"dte"`
	Bars           int             `json:"bars"`
	PutTotal       float64         `json:"put_total"`
	CallTotal      float64         `json:"call_total"`
}

// RetryInfo echoes the retry configuration in job run metadata
type RetryInfo struct {
	Attempts    int   `json:"attempts"`
	BaseDelayMs int64 `json:"base_delay_ms"`
}

// Job extracts both chart views for an anchor minute and stores snapshots and deltas
type Job struct {
	gate      Gate
	extractor domain.Extractor
	ticks     market.Repository
	repo      domain.Repository
	runs      Recorder
	sinks     []Sink
	cfg       Config
	loc       *time.Location

	onAttempt func(view domain.ViewType, attempt int, err error)
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	log       *logger.Logger
}

// NewJob creates the options snapshot job. loc is the reporting timezone for *_bkk fields.
func NewJob(
	gate Gate,
	extractor domain.Extractor,
	ticks market.Repository,
	repo domain.Repository,
	runs Recorder,
	cfg Config,
	loc *time.Location,
	sinks ...Sink,
) *Job {
	return &Job{
		gate:      gate,
		extractor: extractor,
		ticks:     ticks,
		repo:      repo,
		runs:      runs,
		sinks:     sinks,
		cfg:       cfg,
		loc:       loc,
		now:       time.Now,
		log:       logger.Get().With("component", "options_job"),
	}
}

func (j *Job) Name() jobrun.JobName {
	return jobrun.JobOptions
}

// OnExtractAttempt registers a hook called after every extraction attempt.
// err is nil for the successful one.
func (j *Job) OnExtractAttempt(fn func(view domain.ViewType, attempt int, err error)) {
	j.onAttempt = fn
}

// Run executes the job for anchor and records exactly one job run.
// The returned error is non-nil only when that record could not be written.
func (j *Job) Run(ctx context.Context, anchor time.Time) error {
	started := j.now()
	anchorUTC := anchor.UTC().Truncate(time.Minute)
	anchorLocal := anchor.In(j.loc)

	decision, err := j.gate.ExtractionAllowed(ctx, anchor)
	if err != nil {
		j.log.Errorw("Options gate check failed", "anchor", anchorUTC, "error", err)
		return j.record(ctx, jobrun.StatusFailed, started, jobrun.Metadata{
			"views": []ViewDiagnostic{},
		}, jobrun.Step("gate check", err))
	}

	if !decision.Allowed || decision.URL == "" {
		j.log.Infow("Options run skipped",
			"reason", decision.Reason,
			"trade_date", decision.TradeDate,
		)
		return j.record(ctx, jobrun.StatusSkipped, started, jobrun.Metadata{
			"reason": decision.Reason,
			"gate":   decision.Details,
		}, nil)
	}

	tradeDate := decision.TradeDate
	if tradeDate == "" {
		tradeDate = anchorLocal.Format(time.DateOnly)
	}

	diagnostics := make([]ViewDiagnostic, 0, len(domain.Views))
	counts := make(map[domain.ViewType]int, len(domain.Views))

	err = func() error {
		refPrice, err := j.referencePrice(ctx, anchorUTC)
		if err != nil {
			return err
		}

		for _, view := range domain.Views {
			extracted, err := j.extract(ctx, decision.URL, view, tradeDate)
			if err != nil {
				return err
			}

			snapshot := &domain.Snapshot{
				ViewType:        view,
				SnapshotTime:    anchorUTC,
				SnapshotTimeBKK: anchorLocal.Format(time.RFC3339),
				TradeDate:       tradeDate,
				SeriesName:      extracted.SeriesName,
				ExpirationLabel: extracted.ExpirationLabel,
				ExpirationDate:  extracted.ExpirationDate,
				DTE:             extracted.DTE,
				PutTotal:        extracted.PutTotal,
				CallTotal:       extracted.CallTotal,
				Vol:             extracted.Vol,
				VolChg:          extracted.VolChg,
				FutureChg:       extracted.FutureChg,
				ReferencePrice:  refPrice,
				SourceURL:       decision.URL,
			}
			bars := StrikeBars(extracted.Bars)

			if err := j.persistView(ctx, snapshot, bars, extracted.Bars); err != nil {
				return err
			}

			counts[view] = len(bars)
			diagnostics = append(diagnostics, ViewDiagnostic{
				View:           view,
				Series:         extracted.SeriesName,
				ExpirationDate: extracted.ExpirationDate,
				DTE:            extracted.DTE,
				Bars:           len(bars),
				PutTotal:       extracted.PutTotal,
				CallTotal:      extracted.CallTotal,
			})
		}
		return nil
	}()
	if err != nil {
		j.log.Errorw("Options job failed", "anchor", anchorUTC, "step", jobrun.FailedStep(err), "views_done", len(diagnostics), "error", err)
		return j.record(ctx, jobrun.StatusFailed, started, jobrun.Metadata{
			"views": diagnostics,
		}, err)
	}

	j.log.Infow("Options snapshots saved",
		"anchor", anchorUTC,
		"trade_date", tradeDate,
		"bars", counts,
		"duration", j.now().Sub(started),
	)

	return j.record(ctx, jobrun.StatusSuccess, started, jobrun.Metadata{
		"anchor_time_bkk": anchorLocal.Format(time.RFC3339),
		"gate":            decision.Details,
		"bars_per_view":   counts,
		"views":           diagnostics,
		"retry": RetryInfo{
			Attempts:    j.cfg.MaxAttempts,
			BaseDelayMs: j.cfg.RetryDelay.Milliseconds(),
		},
	}, nil)
}

func (j *Job) referencePrice(ctx context.Context, at time.Time) (*float64, error) {
	price, err := j.ticks.LatestPrice(ctx, ReferenceSymbol, at)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, jobrun.Step("load reference price", err)
	}
	return &price, nil
}

func (j *Job) extract(ctx context.Context, url string, view domain.ViewType, tradeDate string) (*domain.ExtractedView, error) {
	attempt := 0
	policy := retry.Policy{
		Name:        fmt.Sprintf("cme_extract_%s", view),
		MaxAttempts: j.cfg.MaxAttempts,
		BaseDelay:   j.cfg.RetryDelay,
		Sleep:       j.sleep,
		OnFailure: func(n int, err error) {
			if j.onAttempt != nil {
				j.onAttempt(view, n, err)
			}
		},
	}

	extracted, err := retry.Do(ctx, policy, func(ctx context.Context) (*domain.ExtractedView, error) {
		attempt++
		if j.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
			defer cancel()
		}
		return j.extractor.Extract(ctx, url, view, tradeDate)
	})
	if err != nil {
		return nil, err
	}
	if j.onAttempt != nil {
		j.onAttempt(view, attempt, nil)
	}
	return extracted, nil
}

func (j *Job) persistView(ctx context.Context, snapshot *domain.Snapshot, bars []domain.StrikeBar, extracted []domain.Bar) error {
	id, err := j.repo.SaveSnapshot(ctx, snapshot, bars, TopActives(extracted, domain.TopLimit))
	if err != nil {
		return jobrun.Step(fmt.Sprintf("save %s snapshot", snapshot.ViewType), err)
	}
	snapshot.ID = id

	for _, sink := range j.sinks {
		if err := sink.OptionsSaved(ctx, snapshot, bars); err != nil {
			j.log.Warnw("Options sink failed", "sink", sink.Name(), "view", snapshot.ViewType, "error", err)
		}
	}

	previous, err := j.repo.FindPrevious(ctx, snapshot.ViewType, snapshot.SeriesName, snapshot.SnapshotTime)
	if errors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return jobrun.Step(fmt.Sprintf("find previous %s snapshot", snapshot.ViewType), err)
	}

	previousBars, err := j.repo.ListBars(ctx, previous.ID)
	if err != nil {
		return jobrun.Step(fmt.Sprintf("load previous %s bars", snapshot.ViewType), err)
	}

	delta := NewDelta(previous, snapshot)
	changes := TopStrikeChanges(BarsOf(previousBars), extracted, domain.TopLimit)
	if _, err := j.repo.SaveDelta(ctx, &delta, changes); err != nil {
		return jobrun.Step(fmt.Sprintf("save %s delta", snapshot.ViewType), err)
	}
	return nil
}

func (j *Job) record(ctx context.Context, status jobrun.Status, started time.Time, meta jobrun.Metadata, runErr error) error {
	finished := j.now()
	meta["duration_ms"] = max(int64(0), finished.Sub(started).Milliseconds())

	run := jobrun.NewRun(jobrun.JobOptions, status, started, finished, meta).WithError(runErr)
	if err := j.runs.Record(context.WithoutCancel(ctx), run); err != nil {
		return errors.Wrapf(err, "record %s run", status)
	}
	return nil
}
