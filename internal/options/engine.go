// Package options turns extracted option chain views into snapshots, deltas and ranked strike changes.
package options

import (
	"sort"

	domain "oidworker/internal/domain/options"
)

// TopActives ranks bars by put+call activity, highest first, keeping at most limit rows.
// Equal totals keep extraction order.
func TopActives(bars []domain.Bar, limit int) []domain.TopActive {
	ranked := append([]domain.Bar(nil), bars...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total() > ranked[j].Total()
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]domain.TopActive, len(ranked))
	for i, b := range ranked {
		out[i] = domain.TopActive{
			Rank:      i + 1,
			Strike:    b.Strike,
			Put:       b.Put,
			Call:      b.Call,
			Total:     b.Total(),
			VolSettle: b.VolSettle,
		}
	}
	return out
}

// StrikeBars converts extracted bars into persisted rows
func StrikeBars(bars []domain.Bar) []domain.StrikeBar {
	out := make([]domain.StrikeBar, len(bars))
	for i, b := range bars {
		out[i] = domain.StrikeBar{
			Strike:        b.Strike,
			Put:           b.Put,
			Call:          b.Call,
			VolSettle:     b.VolSettle,
			TotalActivity: b.Total(),
		}
	}
	return out
}

// BarsOf converts persisted rows back into bars
func BarsOf(rows []domain.StrikeBar) []domain.Bar {
	out := make([]domain.Bar, len(rows))
	for i, r := range rows {
		out[i] = domain.Bar{Strike: r.Strike, Put: r.Put, Call: r.Call, VolSettle: r.VolSettle}
	}
	return out
}

// TopStrikeChanges compares two bar sets over the union of their strikes.
// A strike missing on one side counts as zero put and call there.
// Only strikes whose total grew are kept, ordered by total change, then call change,
// then put change, all descending.
func TopStrikeChanges(previous, current []domain.Bar, limit int) []domain.StrikeChange {
	type side struct{ put, call float64 }
	before := make(map[float64]side, len(previous))
	now := make(map[float64]side, len(current))
	strikes := make([]float64, 0, len(previous)+len(current))

	for _, b := range previous {
		if _, seen := before[b.Strike]; !seen {
			strikes = append(strikes, b.Strike)
		}
		before[b.Strike] = side{b.Put, b.Call}
	}
	for _, b := range current {
		if _, seen := before[b.Strike]; !seen {
			if _, dup := now[b.Strike]; !dup {
				strikes = append(strikes, b.Strike)
			}
		}
		now[b.Strike] = side{b.Put, b.Call}
	}

	changes := make([]domain.StrikeChange, 0, len(strikes))
	for _, strike := range strikes {
		b, n := before[strike], now[strike]
		c := domain.StrikeChange{
			Strike:      strike,
			PutBefore:   b.put,
			PutNow:      n.put,
			PutChange:   n.put - b.put,
			CallBefore:  b.call,
			CallNow:     n.call,
			CallChange:  n.call - b.call,
			TotalBefore: b.put + b.call,
			TotalNow:    n.put + n.call,
		}
		c.TotalChange = c.TotalNow - c.TotalBefore
		if c.TotalChange > 0 {
			changes = append(changes, c)
		}
	}

	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		if a.TotalChange != b.TotalChange {
			return a.TotalChange > b.TotalChange
		}
		if a.CallChange != b.CallChange {
			return a.CallChange > b.CallChange
		}
		return a.PutChange > b.PutChange
	})

	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes
}

// NewDelta compares aggregate totals of two snapshots.
// Missing volume or future change counts as zero in the change columns only.
func NewDelta(previous, current *domain.Snapshot) domain.Delta {
	return domain.Delta{
		CurrentSnapshotID:    current.ID,
		PreviousSnapshotID:   previous.ID,
		PreviousSnapshotTime: previous.SnapshotTime,
		PreviousTimeBKK:      previous.SnapshotTimeBKK,
		SnapshotTime:         current.SnapshotTime,
		SnapshotTimeBKK:      current.SnapshotTimeBKK,
		ViewType:             current.ViewType,
		SeriesName:           current.SeriesName,
		PutBefore:            previous.PutTotal,
		PutNow:               current.PutTotal,
		PutChange:            current.PutTotal - previous.PutTotal,
		CallBefore:           previous.CallTotal,
		CallNow:              current.CallTotal,
		CallChange:           current.CallTotal - previous.CallTotal,
		VolBefore:            previous.Vol,
		VolNow:               current.Vol,
		VolChange:            orZero(current.Vol) - orZero(previous.Vol),
		FutureBefore:         previous.FutureChg,
		FutureNow:            current.FutureChg,
		FutureChange:         orZero(current.FutureChg) - orZero(previous.FutureChg),
	}
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
