package market

import "time"

// Symbol identifies one of the tracked instruments
type Symbol string

const (
	XAUUSD Symbol = "XAUUSD"
	THBUSD Symbol = "THBUSD"
	BTCUSD Symbol = "BTCUSD"
)

// Symbols is the fixed instrument universe, in reporting order
var Symbols = []Symbol{XAUUSD, THBUSD, BTCUSD}

func (s Symbol) String() string {
	return string(s)
}

// Valid reports whether s is part of the tracked universe
func (s Symbol) Valid() bool {
	for _, sym := range Symbols {
		if sym == s {
			return true
		}
	}
	return false
}

// Pair is an ordered instrument pair. A is the regressor for beta.
type Pair struct {
	A Symbol
	B Symbol
}

// ID returns the persisted pair identifier, e.g. "XAUUSD_THBUSD"
func (p Pair) ID() string {
	return string(p.A) + "_" + string(p.B)
}

// Pairs is the fixed set of pairs evaluated by the relation engine
var Pairs = []Pair{
	{A: XAUUSD, B: THBUSD},
	{A: XAUUSD, B: BTCUSD},
	{A: THBUSD, B: BTCUSD},
}

// Tick is one minute-bucketed price observation written by the ingestion gate
type Tick struct {
	Symbol    Symbol    `db:"symbol"`
	Price     float64   `db:"price"`
	EventTime time.Time `db:"event_time_utc"`
}
