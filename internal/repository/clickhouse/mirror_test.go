package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
	"oidworker/internal/testsupport"
)

var anchor = time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func TestPairMetricRows(t *testing.T) {
	agree := true
	rows := PairMetricRows(&relation.Snapshot{
		AnchorTime: anchor,
		PairMetrics: []relation.PairMetric{
			{Pair: "XAUUSD/THBUSD", Correlation: f64(0.82), MinuteDirectionAgree: &agree, AlignedPoints: 31},
			{Pair: "XAUUSD/BTCUSD", AlignedPoints: 0},
		},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, anchor, rows[0].AnchorTime)
	assert.Equal(t, "XAUUSD/THBUSD", rows[0].Pair)
	assert.Equal(t, 0.82, *rows[0].Correlation)
	require.NotNil(t, rows[0].MinuteDirectionAgree)
	assert.Equal(t, uint8(1), *rows[0].MinuteDirectionAgree)
	assert.Equal(t, uint32(31), rows[0].AlignedPoints)

	assert.Nil(t, rows[1].Correlation)
	assert.Nil(t, rows[1].MinuteDirectionAgree)
}

func TestStrikeBarRows(t *testing.T) {
	snap := &options.Snapshot{SnapshotTime: anchor, TradeDate: "2025-01-08", ViewType: options.ViewOI, SeriesName: "OGH5"}
	rows := StrikeBarRows(snap, []options.StrikeBar{
		{Strike: 5000, Put: 10, Call: 5, TotalActivity: 15},
		{Strike: 5050, Put: 1, Call: 2, VolSettle: f64(14.2), TotalActivity: 3},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, StrikeBarRow{
		SnapshotTime: anchor, TradeDate: "2025-01-08", ViewType: "oi", SeriesName: "OGH5",
		Strike: 5000, Put: 10, Call: 5, TotalActivity: 15,
	}, rows[0])
	assert.Equal(t, 14.2, *rows[1].VolSettle)
}

func TestMirror_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := testsupport.NewTestClickHouse(t)
	m := NewMirror(client)
	ctx := context.Background()

	err := m.RelationSaved(ctx, &relation.Snapshot{
		AnchorTime:  anchor,
		PairMetrics: []relation.PairMetric{{Pair: "XAUUSD/THBUSD", Beta: f64(1.1), AlignedPoints: 12}},
	})
	require.NoError(t, err)

	err = m.OptionsSaved(ctx,
		&options.Snapshot{SnapshotTime: anchor, TradeDate: "2025-01-08", ViewType: options.ViewIntraday, SeriesName: "OGH5"},
		[]options.StrikeBar{{Strike: 5000, Put: 1, Call: 1, TotalActivity: 2}},
	)
	require.NoError(t, err)
}
