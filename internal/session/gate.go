package session

import (
	"context"
	"fmt"
	"time"

	"oidworker/internal/domain/reflink"
	"oidworker/pkg/errors"
)

// Daily cutover in Bangkok time after which the day's link must have been refreshed
const (
	cutoverHour   = 5
	cutoverMinute = 30
)

// Details explains a gate decision. It is stored verbatim in job run metadata.
type Details struct {
	State
	TradeDate    string     `json:"trade_date,omitempty"`
	LinkStatus   string     `json:"link_status,omitempty"`
	CutoverBKK   *time.Time `json:"cutover_bkk,omitempty"`
	UpdatedAtBKK *time.Time `json:"updated_at_bkk,omitempty"`
}

// Decision is the outcome of an extraction gate check
type Decision struct {
	Allowed   bool
	Reason    string
	URL       string
	TradeDate string
	Details   Details
}

// Gate decides whether options extraction may run
type Gate struct {
	calendar *Calendar
	links    reflink.Repository
	bkk      *time.Location
}

// NewGate builds a gate over the calendar and the reference link store
func NewGate(calendar *Calendar, links reflink.Repository) (*Gate, error) {
	bkk, err := time.LoadLocation(BangkokZone)
	if err != nil {
		return nil, errors.Wrap(err, "load bangkok timezone")
	}
	return &Gate{calendar: calendar, links: links, bkk: bkk}, nil
}

// TradeDate returns the Bangkok calendar date of at
func (g *Gate) TradeDate(at time.Time) string {
	return at.In(g.bkk).Format(time.DateOnly)
}

// Cutover returns the cutover instant on the Bangkok date of at
func (g *Gate) Cutover(at time.Time) time.Time {
	local := at.In(g.bkk)
	return time.Date(local.Year(), local.Month(), local.Day(), cutoverHour, cutoverMinute, 0, 0, g.bkk)
}

// ExtractionAllowed checks the venue session and the trade date's reference link.
// Links for earlier trade dates are expired as a side effect. Store errors are returned as-is.
func (g *Gate) ExtractionAllowed(ctx context.Context, at time.Time) (Decision, error) {
	state := g.calendar.Venue(at)
	if !state.Open {
		return Decision{
			Reason:  "cme_session_closed",
			Details: Details{State: state},
		}, nil
	}

	tradeDate := g.TradeDate(at)
	details := Details{State: state, TradeDate: tradeDate}

	if _, err := g.links.ExpireBefore(ctx, tradeDate); err != nil {
		return Decision{}, errors.Wrap(err, "expire stale links")
	}

	link, err := g.links.GetByTradeDate(ctx, tradeDate)
	if errors.Is(err, errors.ErrNotFound) {
		return Decision{
			Reason:    "missing_link_for_trade_date",
			TradeDate: tradeDate,
			Details:   details,
		}, nil
	}
	if err != nil {
		return Decision{}, errors.Wrap(err, "load link for trade date")
	}

	if link.Status != reflink.StatusActive {
		details.LinkStatus = string(link.Status)
		return Decision{
			Reason:    fmt.Sprintf("link_status_%s", link.Status),
			TradeDate: tradeDate,
			Details:   details,
		}, nil
	}

	cutover := g.Cutover(at)
	if !at.Before(cutover) && link.UpdatedAt.Before(cutover) {
		updated := link.UpdatedAt.In(g.bkk)
		details.CutoverBKK = &cutover
		details.UpdatedAtBKK = &updated
		return Decision{
			Reason:    "link_not_updated_post_cutover",
			TradeDate: tradeDate,
			Details:   details,
		}, nil
	}

	return Decision{
		Allowed:   true,
		Reason:    "ok",
		URL:       link.URL,
		TradeDate: tradeDate,
		Details:   details,
	}, nil
}
