package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/market"
	"oidworker/internal/testsupport"
)

// testAnchor is far in the future so fixtures never collide with real rows
var testAnchor = time.Date(2091, 3, 14, 10, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return testsupport.NewTestPostgres(t)
}

func insertTick(t *testing.T, db *sqlx.DB, symbol market.Symbol, price float64, at time.Time) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO price_ticks (symbol, price, event_time_utc)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, event_time_utc) DO UPDATE SET price = EXCLUDED.price`,
		symbol, price, at.UTC())
	require.NoError(t, err)
}

func cleanup(t *testing.T, db *sqlx.DB, table, where string, args ...interface{}) {
	t.Helper()
	testsupport.DeleteOnCleanup(t, db, table, where, args...)
}
