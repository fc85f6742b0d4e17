// Package session decides whether instruments and the options venue are trading at an instant.
package session

import (
	"time"
)

// Reference timezones
const (
	BangkokZone = "Asia/Bangkok"
	FXZone      = "America/New_York"
	MetalZone   = "Europe/Berlin"
)

// Decision table boundaries, in minutes after local midnight
const (
	fxCutoffMinute              = 17 * 60
	metalWeekdayCloseMinute     = 23 * 60
	metalFridayCloseMinute      = 22 * 60
	venueMaintenanceStartMinute = 16 * 60
	venueReopenMinute           = 17 * 60
)

// State is the outcome of a session check
type State struct {
	Open        bool      `json:"open"`
	Reason      string    `json:"reason"`
	SessionTime time.Time `json:"session_time"`
}

// Policy evaluates one trading calendar
type Policy interface {
	State(at time.Time) State
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// AlwaysOpen is the 24/7 calendar of crypto instruments
type AlwaysOpen struct{}

func (AlwaysOpen) State(at time.Time) State {
	return State{Open: true, Reason: "crypto_24_7", SessionTime: at.UTC()}
}

// AlwaysClosed is an administrative override
type AlwaysClosed struct{}

func (AlwaysClosed) State(at time.Time) State {
	return State{Open: false, Reason: "symbol_forced_closed", SessionTime: at.UTC()}
}

// FX is the 24/5 foreign-exchange calendar: Sunday 17:00 to Friday 17:00 New York time
type FX struct {
	loc *time.Location
}

func NewFX(loc *time.Location) FX {
	return FX{loc: loc}
}

func (p FX) State(at time.Time) State {
	local := at.In(p.loc)
	m := minuteOfDay(local)

	switch {
	case local.Weekday() == time.Saturday:
		return State{Open: false, Reason: "fx_saturday_closed", SessionTime: local}
	case local.Weekday() == time.Sunday && m < fxCutoffMinute:
		return State{Open: false, Reason: "fx_sunday_pre_open", SessionTime: local}
	case local.Weekday() == time.Friday && m >= fxCutoffMinute:
		return State{Open: false, Reason: "fx_friday_post_close", SessionTime: local}
	}
	return State{Open: true, Reason: "fx_session_open", SessionTime: local}
}

// Metal is the spot-metals server calendar in CET:
// Mon-Thu 00:00-23:00, Fri 00:00-22:00, closed on weekends.
type Metal struct {
	loc *time.Location
}

func NewMetal(loc *time.Location) Metal {
	return Metal{loc: loc}
}

func (p Metal) State(at time.Time) State {
	local := at.In(p.loc)
	m := minuteOfDay(local)

	switch local.Weekday() {
	case time.Saturday:
		return State{Open: false, Reason: "ifc_metal_saturday_closed", SessionTime: local}
	case time.Sunday:
		return State{Open: false, Reason: "ifc_metal_sunday_closed", SessionTime: local}
	case time.Friday:
		if m >= metalFridayCloseMinute {
			return State{Open: false, Reason: "ifc_metal_friday_post_close", SessionTime: local}
		}
	default:
		if m >= metalWeekdayCloseMinute {
			return State{Open: false, Reason: "ifc_metal_weekday_post_close", SessionTime: local}
		}
	}
	return State{Open: true, Reason: "ifc_metal_session_open", SessionTime: local}
}

// Venue is the options venue calendar with its daily maintenance break
type Venue struct {
	loc       *time.Location
	holidays  map[string]struct{}
	forceOpen bool
}

// NewVenue builds the venue calendar. Holidays are YYYY-MM-DD dates in the venue timezone.
func NewVenue(loc *time.Location, holidays []string, forceOpen bool) Venue {
	set := make(map[string]struct{}, len(holidays))
	for _, d := range holidays {
		set[d] = struct{}{}
	}
	return Venue{loc: loc, holidays: set, forceOpen: forceOpen}
}

func (p Venue) State(at time.Time) State {
	local := at.In(p.loc)
	m := minuteOfDay(local)

	if p.forceOpen {
		return State{Open: true, Reason: "force_open_enabled", SessionTime: local}
	}
	if _, ok := p.holidays[local.Format(time.DateOnly)]; ok {
		return State{Open: false, Reason: "holiday_closure", SessionTime: local}
	}

	switch {
	case local.Weekday() == time.Saturday:
		return State{Open: false, Reason: "saturday_closed", SessionTime: local}
	case local.Weekday() == time.Sunday && m < venueReopenMinute:
		return State{Open: false, Reason: "sunday_pre_open", SessionTime: local}
	case local.Weekday() == time.Friday && m >= venueMaintenanceStartMinute:
		return State{Open: false, Reason: "friday_post_close", SessionTime: local}
	case m >= venueMaintenanceStartMinute && m < venueReopenMinute:
		return State{Open: false, Reason: "daily_maintenance_break", SessionTime: local}
	}
	return State{Open: true, Reason: "session_open", SessionTime: local}
}
