package session

import (
	"strings"
	"time"
	_ "time/tzdata" // zone rules must not depend on the host image

	"oidworker/internal/domain/market"
	"oidworker/pkg/errors"
)

// Mode selects the calendar used for a symbol
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModeAlwaysOpen   Mode = "always_open"
	ModeAlwaysClosed Mode = "always_closed"
	ModeFX           Mode = "fx_24_5"
	ModeMetal        Mode = "ifc_metal"
)

// ParseMode maps a configured value to a Mode. Unknown values fall back to auto.
func ParseMode(raw string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeAlwaysOpen, ModeAlwaysClosed, ModeFX, ModeMetal:
		return m
	default:
		return ModeAuto
	}
}

// Resolve replaces auto with the default calendar for symbol
func (m Mode) Resolve(symbol market.Symbol) Mode {
	if m != ModeAuto {
		return m
	}
	if symbol == market.BTCUSD {
		return ModeAlwaysOpen
	}
	return ModeMetal
}

// Config configures a Calendar
type Config struct {
	VenueTimezone string
	Holidays      []string
	ForceOpen     bool
	SymbolModes   map[string]string
}

// SymbolState is a symbol's session state as reported by health endpoints
type SymbolState struct {
	Symbol market.Symbol `json:"symbol"`
	State
}

// Calendar resolves the session policy of every symbol and of the options venue
type Calendar struct {
	venue    Venue
	policies map[market.Symbol]Policy
	modes    map[market.Symbol]Mode
}

// NewCalendar loads the reference timezones and builds per-symbol policies
func NewCalendar(cfg Config) (*Calendar, error) {
	venueZone := cfg.VenueTimezone
	if venueZone == "" {
		venueZone = "America/Chicago"
	}
	venueLoc, err := time.LoadLocation(venueZone)
	if err != nil {
		return nil, errors.Wrapf(err, "load venue timezone %q", venueZone)
	}
	fxLoc, err := time.LoadLocation(FXZone)
	if err != nil {
		return nil, errors.Wrap(err, "load fx timezone")
	}
	metalLoc, err := time.LoadLocation(MetalZone)
	if err != nil {
		return nil, errors.Wrap(err, "load metal timezone")
	}

	c := &Calendar{
		venue:    NewVenue(venueLoc, cfg.Holidays, cfg.ForceOpen),
		policies: make(map[market.Symbol]Policy, len(market.Symbols)),
		modes:    make(map[market.Symbol]Mode, len(market.Symbols)),
	}

	for _, sym := range market.Symbols {
		mode := ParseMode(cfg.SymbolModes[string(sym)])
		c.modes[sym] = mode

		switch mode.Resolve(sym) {
		case ModeAlwaysOpen:
			c.policies[sym] = AlwaysOpen{}
		case ModeAlwaysClosed:
			c.policies[sym] = AlwaysClosed{}
		case ModeFX:
			c.policies[sym] = NewFX(fxLoc)
		default:
			c.policies[sym] = NewMetal(metalLoc)
		}
	}

	return c, nil
}

// Venue returns the options venue session state at instant at
func (c *Calendar) Venue(at time.Time) State {
	return c.venue.State(at)
}

// Symbol returns the session state of symbol at instant at.
// Symbols outside the tracked universe are reported closed.
func (c *Calendar) Symbol(symbol market.Symbol, at time.Time) State {
	p, ok := c.policies[symbol]
	if !ok {
		return AlwaysClosed{}.State(at)
	}
	return p.State(at)
}

// Symbols evaluates every tracked symbol at instant at
func (c *Calendar) Symbols(at time.Time) []SymbolState {
	out := make([]SymbolState, 0, len(market.Symbols))
	for _, sym := range market.Symbols {
		out = append(out, SymbolState{Symbol: sym, State: c.Symbol(sym, at)})
	}
	return out
}

// Modes returns the configured (unresolved) mode per symbol
func (c *Calendar) Modes() map[string]string {
	out := make(map[string]string, len(c.modes))
	for sym, m := range c.modes {
		out[string(sym)] = string(m)
	}
	return out
}
