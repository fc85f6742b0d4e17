package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/options"
	"oidworker/pkg/errors"
)

func optionsSnapshot(at time.Time, put, call float64) *options.Snapshot {
	vol := 1200.0
	return &options.Snapshot{
		ViewType:        options.ViewIntraday,
		SnapshotTime:    at,
		SnapshotTimeBKK: at.Add(7 * time.Hour).Format("2006-01-02T15:04:05") + "+07:00",
		TradeDate:       "2091-03-14",
		SeriesName:      "TESTSERIES",
		PutTotal:        put,
		CallTotal:       call,
		Vol:             &vol,
		SourceURL:       "https://charts.example.test/link",
	}
}

func TestOptionsRepository_SnapshotAndDelta(t *testing.T) {
	db := setupDB(t)
	repo := NewOptionsRepository(db)
	ctx := context.Background()
	cleanup(t, db, "cme_snapshots", "series_name = $1", "TESTSERIES")

	prevTime := testAnchor.Add(-30 * time.Minute)
	prevID, err := repo.SaveSnapshot(ctx, optionsSnapshot(prevTime, 100, 50),
		[]options.StrikeBar{{Strike: 5000, Put: 80, Call: 20, TotalActivity: 100}},
		[]options.TopActive{{Rank: 1, Strike: 5000, Put: 80, Call: 20, Total: 100}},
	)
	require.NoError(t, err)

	curID, err := repo.SaveSnapshot(ctx, optionsSnapshot(testAnchor, 120, 60),
		[]options.StrikeBar{{Strike: 5000, Put: 90, Call: 30, TotalActivity: 120}},
		nil,
	)
	require.NoError(t, err)

	// rerun at the same minute keeps the id and replaces the child rows
	againID, err := repo.SaveSnapshot(ctx, optionsSnapshot(testAnchor, 130, 60), []options.StrikeBar{
		{Strike: 5050, Put: 5, Call: 5, TotalActivity: 10},
		{Strike: 5000, Put: 95, Call: 30, TotalActivity: 125},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, curID, againID)

	bars, err := repo.ListBars(ctx, curID)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 5000.0, bars[0].Strike)
	assert.Equal(t, 95.0, bars[0].Put)

	prev, err := repo.FindPrevious(ctx, options.ViewIntraday, "TESTSERIES", testAnchor)
	require.NoError(t, err)
	assert.Equal(t, prevID, prev.ID)
	assert.Equal(t, "2091-03-14", prev.TradeDate)

	_, err = repo.FindPrevious(ctx, options.ViewIntraday, "TESTSERIES", prevTime)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	delta := &options.Delta{
		CurrentSnapshotID:    curID,
		PreviousSnapshotID:   prevID,
		PreviousSnapshotTime: prevTime,
		PreviousTimeBKK:      prev.SnapshotTimeBKK,
		SnapshotTime:         testAnchor,
		SnapshotTimeBKK:      "2091-03-14T17:00:00+07:00",
		ViewType:             options.ViewIntraday,
		SeriesName:           "TESTSERIES",
		PutBefore:            100,
		PutNow:               130,
		PutChange:            30,
		CallBefore:           50,
		CallNow:              60,
		CallChange:           10,
	}
	changes := []options.StrikeChange{
		{Strike: 5000, PutBefore: 80, PutNow: 95, PutChange: 15, CallBefore: 20, CallNow: 30, CallChange: 10, TotalBefore: 100, TotalNow: 125, TotalChange: 25},
		{Strike: 5050, PutNow: 5, PutChange: 5, CallNow: 5, CallChange: 5, TotalNow: 10, TotalChange: 10},
	}
	deltaID, err := repo.SaveDelta(ctx, delta, changes)
	require.NoError(t, err)

	againDelta, err := repo.SaveDelta(ctx, delta, changes[:1])
	require.NoError(t, err)
	assert.Equal(t, deltaID, againDelta)

	top, err := repo.ListTopChanges(ctx, deltaID)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, 25.0, top[0].TotalChange)

	deltas, err := repo.LatestDeltas(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, deltaID, deltas[0].ID)
	assert.Nil(t, deltas[0].VolBefore)
}
