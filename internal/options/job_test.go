package options

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/market"
	domain "oidworker/internal/domain/options"
	"oidworker/internal/domain/reflink"
	"oidworker/internal/session"
	"oidworker/internal/testsupport"
	"oidworker/pkg/errors"
)

const testURL = "https://charts.example.test/quikstrike?viewitem=IntegratedV2VExpectedRange"

// Wednesday 2025-01-08 17:00 Bangkok, 04:00 Chicago: venue open, after cutover
var testAnchor = time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC)

type gateFunc func(ctx context.Context, at time.Time) (session.Decision, error)

func (f gateFunc) ExtractionAllowed(ctx context.Context, at time.Time) (session.Decision, error) {
	return f(ctx, at)
}

func allowAll(ctx context.Context, at time.Time) (session.Decision, error) {
	return session.Decision{Allowed: true, Reason: "ok", URL: testURL, TradeDate: "2025-01-08"}, nil
}

type scriptedExtractor struct {
	mu       sync.Mutex
	calls    map[domain.ViewType]int
	failures map[domain.ViewType]int
	// stalls counts leading calls that block until their ctx is done
	stalls map[domain.ViewType]int
	err      error
	views    map[domain.ViewType]*domain.ExtractedView
}

func newScriptedExtractor() *scriptedExtractor {
	return &scriptedExtractor{
		calls:    make(map[domain.ViewType]int),
		failures: make(map[domain.ViewType]int),
		stalls:   make(map[domain.ViewType]int),
		err:      errors.New("navigation timeout"),
		views: map[domain.ViewType]*domain.ExtractedView{
			domain.ViewIntraday: {
				SeriesName: "OG2F5",
				DTE:        ptr(1.5),
				PutTotal:   280,
				CallTotal:  300,
				Vol:        ptr(580),
				Bars:       []domain.Bar{bar(5000, 100, 120), bar(5050, 80, 90), bar(5100, 40, 20), bar(5150, 60, 70)},
			},
			domain.ViewOI: {
				SeriesName: "OG2F5",
				DTE:        ptr(1.5),
				PutTotal:   900,
				CallTotal:  1100,
				Bars:       []domain.Bar{bar(5000, 500, 600), bar(5100, 400, 500)},
			},
		},
	}
}

func (e *scriptedExtractor) Extract(ctx context.Context, url string, view domain.ViewType, tradeDate string) (*domain.ExtractedView, error) {
	e.mu.Lock()
	e.calls[view]++
	n := e.calls[view]
	stall := n <= e.stalls[view]
	fail := n <= e.failures[view]
	v := *e.views[view]
	e.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, fmt.Errorf("Page.navigate: %w", ctx.Err())
	}
	if fail {
		return nil, fmt.Errorf("%w (attempt %d)", e.err, n)
	}
	return &v, nil
}

type jobFixture struct {
	ticks     *testsupport.TickStore
	store     *testsupport.OptionsStore
	runs      *testsupport.JobRunStore
	extractor *scriptedExtractor
	delays    []time.Duration
	job       *Job
}

func newJobFixture(t *testing.T, gate Gate) *jobFixture {
	t.Helper()
	bkk, err := time.LoadLocation(session.BangkokZone)
	require.NoError(t, err)

	f := &jobFixture{
		ticks:     testsupport.NewTickStore(),
		store:     testsupport.NewOptionsStore(),
		runs:      testsupport.NewJobRunStore(),
		extractor: newScriptedExtractor(),
	}
	f.job = NewJob(gate, f.extractor, f.ticks, f.store, jobrun.NewService(f.runs),
		Config{MaxAttempts: 3, RetryDelay: 1200 * time.Millisecond}, bkk)
	f.job.sleep = func(ctx context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return nil
	}
	return f
}

func (f *jobFixture) onlyRun(t *testing.T) jobrun.Run {
	t.Helper()
	runs := f.runs.ByJob(jobrun.JobOptions)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestJob_FirstRunStoresSnapshotsWithoutDelta(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.ticks.Add(
		market.Tick{Symbol: market.XAUUSD, Price: 2650.5, EventTime: testAnchor.Add(-3 * time.Minute)},
		market.Tick{Symbol: market.XAUUSD, Price: 2700, EventTime: testAnchor.Add(time.Minute)},
	)

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusSuccess, run.Status)
	assert.Equal(t, map[domain.ViewType]int{domain.ViewIntraday: 4, domain.ViewOI: 2}, run.Metadata["bars_per_view"])
	assert.Equal(t, RetryInfo{Attempts: 3, BaseDelayMs: 1200}, run.Metadata["retry"])
	assert.Equal(t, "2025-01-08T17:00:00+07:00", run.Metadata["anchor_time_bkk"])

	views, ok := run.Metadata["views"].([]ViewDiagnostic)
	require.True(t, ok)
	require.Len(t, views, 2)
	assert.Equal(t, domain.ViewIntraday, views[0].View)
	assert.Equal(t, domain.ViewOI, views[1].View)

	snaps := f.store.Snapshots()
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		require.NotNil(t, s.ReferencePrice)
		assert.Equal(t, 2650.5, *s.ReferencePrice)
		assert.Equal(t, testAnchor, s.SnapshotTime)
		assert.Equal(t, "2025-01-08", s.TradeDate)
		assert.Equal(t, testURL, s.SourceURL)
	}

	top := f.store.TopActives(snaps[0].ID)
	require.Len(t, top, 3)
	assert.Equal(t, 5000.0, top[0].Strike)
	assert.Empty(t, f.store.Deltas())
}

func TestJob_SecondAnchorWritesDeltaAndTopChanges(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	ctx := context.Background()

	require.NoError(t, f.job.Run(ctx, testAnchor))

	f.extractor.views[domain.ViewIntraday] = &domain.ExtractedView{
		SeriesName: "OG2F5",
		PutTotal:   291,
		CallTotal:  370,
		Bars:       []domain.Bar{bar(5000, 140, 180), bar(5050, 70, 95), bar(5100, 20, 15), bar(5150, 61, 80)},
	}
	next := testAnchor.Add(30 * time.Minute)
	require.NoError(t, f.job.Run(ctx, next))

	deltas := f.store.Deltas()
	require.Len(t, deltas, 2)

	var intraday domain.Delta
	for _, d := range deltas {
		if d.ViewType == domain.ViewIntraday {
			intraday = d
		}
	}
	assert.Equal(t, 11.0, intraday.PutChange)
	assert.Equal(t, 70.0, intraday.CallChange)
	assert.Equal(t, -580.0, intraday.VolChange)
	assert.Equal(t, testAnchor, intraday.PreviousSnapshotTime)
	assert.Equal(t, next, intraday.SnapshotTime)

	changes, err := f.store.ListTopChanges(ctx, intraday.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, 1, changes[0].Rank)
	assert.Equal(t, 5000.0, changes[0].Strike)
	assert.Equal(t, 100.0, changes[0].TotalChange)
	assert.Equal(t, 2, changes[1].Rank)
	assert.Equal(t, 5150.0, changes[1].Strike)
	assert.Equal(t, 11.0, changes[1].TotalChange)
}

func TestJob_RerunSameAnchorReplacesRows(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	ctx := context.Background()

	require.NoError(t, f.job.Run(ctx, testAnchor))
	require.NoError(t, f.job.Run(ctx, testAnchor.Add(20*time.Second)))

	assert.Len(t, f.store.Snapshots(), 2)
	assert.Empty(t, f.store.Deltas())
	assert.Len(t, f.runs.ByJob(jobrun.JobOptions), 2)
}

func TestJob_RetriesExtractionUntilSuccess(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.extractor.failures[domain.ViewIntraday] = 2

	var attempts []error
	f.job.OnExtractAttempt(func(view domain.ViewType, attempt int, err error) {
		if view == domain.ViewIntraday {
			attempts = append(attempts, err)
		}
	})

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusSuccess, run.Status)
	assert.Equal(t, 3, f.extractor.calls[domain.ViewIntraday])
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 2400 * time.Millisecond}, f.delays)
	require.Len(t, attempts, 3)
	assert.Error(t, attempts[0])
	assert.Error(t, attempts[1])
	assert.NoError(t, attempts[2])
}

func TestJob_RetriesAttemptTimeout(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.job.cfg.Timeout = 30 * time.Millisecond
	f.extractor.stalls[domain.ViewIntraday] = 1

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusSuccess, run.Status)
	assert.Nil(t, run.ErrorMessage)
	assert.Equal(t, 2, f.extractor.calls[domain.ViewIntraday])
	assert.Equal(t, []time.Duration{1200 * time.Millisecond}, f.delays)
}

func TestJob_CancelledCallerStillRecordsRun(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.extractor.failures[domain.ViewIntraday] = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.job.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	require.NoError(t, f.job.Run(ctx, testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "navigation timeout (attempt 1)", *run.ErrorMessage)
	assert.Equal(t, 1, f.extractor.calls[domain.ViewIntraday])
}

func TestJob_FailsAfterMaxAttempts(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.extractor.failures[domain.ViewOI] = 3

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "navigation timeout (attempt 3)", *run.ErrorMessage)
	assert.Equal(t, 3, f.extractor.calls[domain.ViewOI])

	// the intraday view completed before the failure
	views, ok := run.Metadata["views"].([]ViewDiagnostic)
	require.True(t, ok)
	require.Len(t, views, 1)
	assert.Equal(t, domain.ViewIntraday, views[0].View)
}

func TestJob_SkipsWhenLinkMissing(t *testing.T) {
	cal, err := session.NewCalendar(session.Config{VenueTimezone: "America/Chicago"})
	require.NoError(t, err)
	gate, err := session.NewGate(cal, testsupport.NewLinkStore())
	require.NoError(t, err)

	f := newJobFixture(t, gate)
	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusSkipped, run.Status)
	assert.Equal(t, jobrun.ReasonMissingLink, run.Metadata.Reason())
	assert.Contains(t, run.Metadata, "gate")
	assert.Zero(t, f.extractor.calls[domain.ViewIntraday])
	assert.Empty(t, f.store.Snapshots())
}

func TestJob_SkipsStaleLink(t *testing.T) {
	links := testsupport.NewLinkStore(reflink.Link{
		TradeDate: "2025-01-08",
		URL:       testURL,
		Status:    reflink.StatusActive,
		UpdatedAt: time.Date(2025, time.January, 7, 22, 0, 0, 0, time.UTC),
	})
	cal, err := session.NewCalendar(session.Config{VenueTimezone: "America/Chicago"})
	require.NoError(t, err)
	gate, err := session.NewGate(cal, links)
	require.NoError(t, err)

	f := newJobFixture(t, gate)
	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusSkipped, run.Status)
	assert.Equal(t, jobrun.ReasonLinkNotUpdated, run.Metadata.Reason())
}

func TestJob_GateStoreErrorFailsRun(t *testing.T) {
	f := newJobFixture(t, gateFunc(func(ctx context.Context, at time.Time) (session.Decision, error) {
		return session.Decision{}, errors.ErrUnavailable
	}))

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "service unavailable", *run.ErrorMessage)
	assert.Equal(t, "gate check", run.Metadata["failed_step"])
}

func TestJob_PersistenceErrorFailsRun(t *testing.T) {
	f := newJobFixture(t, gateFunc(allowAll))
	f.store.Err = errors.New("pq: deadlock detected")

	require.NoError(t, f.job.Run(context.Background(), testAnchor))

	run := f.onlyRun(t)
	assert.Equal(t, jobrun.StatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "pq: deadlock detected", *run.ErrorMessage)
	assert.Equal(t, "save intraday snapshot", run.Metadata["failed_step"])
}
