package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/reflink"
	"oidworker/internal/testsupport"
	"oidworker/pkg/errors"
)

func newTestGate(t *testing.T, links *testsupport.LinkStore) *Gate {
	t.Helper()
	cal, err := NewCalendar(Config{VenueTimezone: "America/Chicago"})
	require.NoError(t, err)
	gate, err := NewGate(cal, links)
	require.NoError(t, err)
	return gate
}

func bkkTime(t *testing.T, day, hour, minute int) time.Time {
	return time.Date(2025, time.January, day, hour, minute, 0, 0, mustLoc(t, BangkokZone))
}

func TestGate_VenueClosed(t *testing.T) {
	links := testsupport.NewLinkStore()
	gate := newTestGate(t, links)

	// Saturday 12:00 Bangkok is Friday 23:00 Chicago
	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 4, 12, 0))
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, "cme_session_closed", dec.Reason)
	assert.Equal(t, "friday_post_close", dec.Details.Reason)
	assert.Empty(t, dec.Details.TradeDate)
}

func TestGate_MissingLink(t *testing.T) {
	gate := newTestGate(t, testsupport.NewLinkStore())

	// Wednesday 10:00 Bangkok is Tuesday 21:00 Chicago: venue open
	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 10, 0))
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, "missing_link_for_trade_date", dec.Reason)
	assert.Equal(t, "2025-01-08", dec.Details.TradeDate)
	assert.True(t, dec.Details.Open)
}

func TestGate_ExpiresOlderLinks(t *testing.T) {
	links := testsupport.NewLinkStore(
		reflink.Link{TradeDate: "2025-01-07", URL: "https://example.test/old", Status: reflink.StatusActive, UpdatedAt: bkkTime(t, 7, 6, 0)},
		reflink.Link{TradeDate: "2025-01-08", URL: "https://example.test/today", Status: reflink.StatusActive, UpdatedAt: bkkTime(t, 8, 6, 0)},
	)
	gate := newTestGate(t, links)

	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 10, 0))
	require.NoError(t, err)

	assert.True(t, dec.Allowed)
	assert.Equal(t, "ok", dec.Reason)
	assert.Equal(t, "https://example.test/today", dec.URL)
	assert.Equal(t, "2025-01-08", dec.TradeDate)

	old, ok := links.Get("2025-01-07")
	require.True(t, ok)
	assert.Equal(t, reflink.StatusExpired, old.Status)
}

func TestGate_LinkStatus(t *testing.T) {
	links := testsupport.NewLinkStore(
		reflink.Link{TradeDate: "2025-01-08", URL: "https://example.test/today", Status: reflink.StatusExpired, UpdatedAt: bkkTime(t, 8, 6, 0)},
	)
	gate := newTestGate(t, links)

	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 10, 0))
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, "link_status_expired", dec.Reason)
	assert.Equal(t, "expired", dec.Details.LinkStatus)
}

func TestGate_StaleLinkAfterCutover(t *testing.T) {
	links := testsupport.NewLinkStore(
		reflink.Link{TradeDate: "2025-01-08", URL: "https://example.test/today", Status: reflink.StatusActive, UpdatedAt: bkkTime(t, 7, 20, 0)},
	)
	gate := newTestGate(t, links)

	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 10, 0))
	require.NoError(t, err)

	assert.False(t, dec.Allowed)
	assert.Equal(t, "link_not_updated_post_cutover", dec.Reason)
	require.NotNil(t, dec.Details.CutoverBKK)
	require.NotNil(t, dec.Details.UpdatedAtBKK)
	assert.True(t, dec.Details.CutoverBKK.Equal(bkkTime(t, 8, 5, 30)))
	assert.True(t, dec.Details.UpdatedAtBKK.Equal(bkkTime(t, 7, 20, 0)))
}

func TestGate_BeforeCutoverAcceptsOlderUpdate(t *testing.T) {
	links := testsupport.NewLinkStore(
		reflink.Link{TradeDate: "2025-01-08", URL: "https://example.test/today", Status: reflink.StatusActive, UpdatedAt: bkkTime(t, 7, 20, 0)},
	)
	gate := newTestGate(t, links)

	// 04:00 Bangkok is 15:00 Chicago the previous day
	dec, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 4, 0))
	require.NoError(t, err)
	assert.True(t, dec.Allowed)
}

func TestGate_StoreError(t *testing.T) {
	links := testsupport.NewLinkStore()
	links.Err = errors.ErrUnavailable
	gate := newTestGate(t, links)

	_, err := gate.ExtractionAllowed(context.Background(), bkkTime(t, 8, 10, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}
