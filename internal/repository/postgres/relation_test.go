package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/relation"
	"oidworker/pkg/errors"
)

func TestRelationRepository_UpsertReplaces(t *testing.T) {
	db := setupDB(t)
	bkk, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)

	repo := NewRelationRepository(db, bkk)
	ctx := context.Background()
	cleanup(t, db, "relation_snapshots_30m", "anchor_time_utc = $1", testAnchor)

	price := 2650.5
	snap := &relation.Snapshot{
		AnchorTime:    testAnchor,
		WindowStart:   testAnchor.Add(-30 * time.Minute),
		WindowEnd:     testAnchor,
		SymbolReturns: []relation.SymbolReturn{{Symbol: "XAUUSD", CurrentPrice: &price, PointsObserved: 31}},
		PairMetrics:   []relation.PairMetric{{Pair: "XAUUSD/THBUSD", AlignedPoints: 30}},
		QualityFlags:  relation.QualityFlags{MinPointsRequired: relation.MinPoints, OpenSymbols: []string{"XAUUSD", "THBUSD"}},
	}
	require.NoError(t, repo.Upsert(ctx, snap))

	snap.PairMetrics[0].AlignedPoints = 31
	require.NoError(t, repo.Upsert(ctx, snap))

	got, err := repo.GetByAnchor(ctx, testAnchor)
	require.NoError(t, err)
	assert.True(t, got.AnchorTime.Equal(testAnchor))
	assert.Equal(t, 31, got.PairMetrics[0].AlignedPoints)
	assert.Equal(t, 2650.5, *got.SymbolReturns[0].CurrentPrice)
	assert.Equal(t, []string{"XAUUSD", "THBUSD"}, got.QualityFlags.OpenSymbols)

	var bkkAnchor string
	require.NoError(t, db.GetContext(ctx, &bkkAnchor, `SELECT anchor_time_bkk FROM relation_snapshots_30m WHERE anchor_time_utc = $1`, testAnchor))
	assert.Equal(t, "2091-03-14T17:00:00+07:00", bkkAnchor)

	latest, err := repo.ListLatest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.True(t, latest[0].AnchorTime.Equal(testAnchor))

	_, err = repo.GetByAnchor(ctx, testAnchor.Add(time.Minute))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
