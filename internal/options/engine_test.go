package options

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "oidworker/internal/domain/options"
)

func bar(strike, put, call float64) domain.Bar {
	return domain.Bar{Strike: strike, Put: put, Call: call}
}

func ptr(v float64) *float64 { return &v }

func TestTopStrikeChanges_RanksPositiveGrowth(t *testing.T) {
	previous := []domain.Bar{bar(5000, 100, 120), bar(5050, 80, 90), bar(5100, 40, 20), bar(5150, 60, 70)}
	current := []domain.Bar{bar(5000, 140, 180), bar(5050, 70, 95), bar(5100, 20, 15), bar(5150, 61, 80)}

	changes := TopStrikeChanges(previous, current, domain.TopLimit)

	require.Len(t, changes, 2)
	assert.Equal(t, domain.StrikeChange{
		Strike: 5000, PutBefore: 100, PutNow: 140, PutChange: 40,
		CallBefore: 120, CallNow: 180, CallChange: 60,
		TotalBefore: 220, TotalNow: 320, TotalChange: 100,
	}, changes[0])
	assert.Equal(t, 5150.0, changes[1].Strike)
	assert.Equal(t, 11.0, changes[1].TotalChange)
}

func TestTopStrikeChanges_OuterUnion(t *testing.T) {
	previous := []domain.Bar{bar(4900, 10, 10)}
	current := []domain.Bar{bar(5000, 5, 7)}

	changes := TopStrikeChanges(previous, current, domain.TopLimit)

	require.Len(t, changes, 1)
	assert.Equal(t, 5000.0, changes[0].Strike)
	assert.Zero(t, changes[0].TotalBefore)
	assert.Equal(t, 12.0, changes[0].TotalChange)
}

func TestTopStrikeChanges_TieBreaks(t *testing.T) {
	current := []domain.Bar{
		bar(1, 10, 0),
		bar(2, 0, 10),
		bar(3, 5, 5),
		bar(4, 4, 6),
	}

	changes := TopStrikeChanges(nil, current, domain.TopLimit)

	require.Len(t, changes, 3)
	// all grew by 10: call change desc, then put change desc
	assert.Equal(t, []float64{2, 4, 3}, []float64{changes[0].Strike, changes[1].Strike, changes[2].Strike})
}

func TestTopStrikeChanges_Empty(t *testing.T) {
	assert.Empty(t, TopStrikeChanges(nil, nil, domain.TopLimit))

	same := []domain.Bar{bar(5000, 1, 1)}
	assert.Empty(t, TopStrikeChanges(same, same, domain.TopLimit))

	shrinking := TopStrikeChanges([]domain.Bar{bar(5000, 10, 10)}, []domain.Bar{bar(5000, 1, 1)}, domain.TopLimit)
	assert.NotNil(t, shrinking)
	assert.Empty(t, shrinking)
}

func TestTopActives(t *testing.T) {
	bars := []domain.Bar{
		{Strike: 5000, Put: 1, Call: 1, VolSettle: ptr(14.25)},
		bar(5050, 10, 30),
		bar(5100, 20, 5),
		bar(5150, 0, 26),
	}

	top := TopActives(bars, domain.TopLimit)

	require.Len(t, top, 3)
	assert.Equal(t, domain.TopActive{Rank: 1, Strike: 5050, Put: 10, Call: 30, Total: 40}, top[0])
	assert.Equal(t, 5150.0, top[1].Strike)
	assert.Equal(t, 2, top[1].Rank)
	assert.Equal(t, 5100.0, top[2].Strike)
	assert.Equal(t, 3, top[2].Rank)

	assert.Len(t, TopActives(bars[:1], domain.TopLimit), 1)
	assert.Empty(t, TopActives(nil, domain.TopLimit))
}

func TestNewDelta_NullsCountAsZeroInChanges(t *testing.T) {
	previous := &domain.Snapshot{
		ID: uuid.New(), ViewType: domain.ViewOI, SeriesName: "OG2F5",
		PutTotal: 1000, CallTotal: 1500, Vol: nil, FutureChg: ptr(-2.5),
	}
	current := &domain.Snapshot{
		ID: uuid.New(), ViewType: domain.ViewOI, SeriesName: "OG2F5",
		PutTotal: 1100, CallTotal: 1400, Vol: ptr(300), FutureChg: nil,
	}

	d := NewDelta(previous, current)

	assert.Equal(t, current.ID, d.CurrentSnapshotID)
	assert.Equal(t, previous.ID, d.PreviousSnapshotID)
	assert.Equal(t, 100.0, d.PutChange)
	assert.Equal(t, -100.0, d.CallChange)
	assert.Nil(t, d.VolBefore)
	assert.Equal(t, 300.0, d.VolChange)
	assert.Nil(t, d.FutureNow)
	assert.Equal(t, 2.5, d.FutureChange)
}
