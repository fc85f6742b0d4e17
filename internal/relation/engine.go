// Package relation builds the 30-minute cross-asset relation snapshot.
package relation

import (
	"fmt"
	"sort"
	"time"

	"oidworker/internal/domain/market"
	domain "oidworker/internal/domain/relation"
	"oidworker/internal/quant"
)

// Window is the lookback covered by one snapshot
const Window = 30 * time.Minute

// Input is everything the engine needs for one anchor
type Input struct {
	Anchor time.Time
	Ticks  []market.Tick
	Open   map[market.Symbol]bool
}

// minutePrice is one bucketed observation
type minutePrice struct {
	minute int64
	price  float64
}

// series holds one symbol's minute prices and returns
type series struct {
	prices  []minutePrice
	byMin   map[int64]float64
	returns map[int64]float64
}

func minuteKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Minute).Unix()
}

// bucket keeps one price per UTC minute. Ticks arrive oldest first, so the last write per minute wins.
func bucket(ticks []market.Tick) map[market.Symbol]*series {
	out := make(map[market.Symbol]*series, len(market.Symbols))
	for _, sym := range market.Symbols {
		out[sym] = &series{byMin: make(map[int64]float64), returns: make(map[int64]float64)}
	}

	for _, t := range ticks {
		s, ok := out[t.Symbol]
		if !ok {
			continue
		}
		s.byMin[minuteKey(t.EventTime)] = t.Price
	}

	for _, s := range out {
		s.prices = make([]minutePrice, 0, len(s.byMin))
		for m, p := range s.byMin {
			s.prices = append(s.prices, minutePrice{minute: m, price: p})
		}
		sort.Slice(s.prices, func(i, j int) bool { return s.prices[i].minute < s.prices[j].minute })

		for i := 1; i < len(s.prices); i++ {
			prev := s.prices[i-1].price
			if prev == 0 {
				continue
			}
			s.returns[s.prices[i].minute] = (s.prices[i].price - prev) / prev
		}
	}
	return out
}

// Compute derives the snapshot for in.Anchor. The caller has already checked that at
// least two symbols are open; closed symbols still get a (null) row.
func Compute(in Input) domain.Snapshot {
	anchor := in.Anchor.UTC().Truncate(time.Minute)
	windowStart := anchor.Add(-Window)
	bySymbol := bucket(in.Ticks)

	currentMinute := minuteKey(anchor)
	previousMinute := minuteKey(anchor.Add(-time.Minute))

	returns := make(map[market.Symbol]domain.SymbolReturn, len(market.Symbols))
	symbolReturns := make([]domain.SymbolReturn, 0, len(market.Symbols))
	flags := domain.QualityFlags{
		MinPointsRequired: domain.MinPoints,
		OpenSymbols:       []string{},
		ClosedSymbols:     []string{},
		DegradedSymbols:   []string{},
		PairAlignedPoints: []string{},
	}

	for _, sym := range market.Symbols {
		s := bySymbol[sym]
		open := in.Open[sym]
		row := domain.SymbolReturn{Symbol: string(sym), Degraded: true}

		if open {
			flags.OpenSymbols = append(flags.OpenSymbols, string(sym))
			if n := len(s.prices); n > 0 {
				row.CurrentPrice = quant.Float(s.prices[n-1].price)
				row.PreviousPrice = quant.Float(s.prices[0].price)
			}
			if p, ok := s.byMin[currentMinute]; ok {
				row.MinuteCurrentPrice = quant.Float(p)
			}
			if p, ok := s.byMin[previousMinute]; ok {
				row.MinutePreviousPrice = quant.Float(p)
			}
			row.PointsObserved = len(s.prices)
			row.Degraded = row.PointsObserved < domain.MinPoints
		} else {
			flags.ClosedSymbols = append(flags.ClosedSymbols, string(sym))
		}

		row.AbsChange = quant.AbsChange(row.CurrentPrice, row.PreviousPrice)
		row.PctChange = quant.PctChange(row.CurrentPrice, row.PreviousPrice)
		row.MinuteAbsChange = quant.AbsChange(row.MinuteCurrentPrice, row.MinutePreviousPrice)
		row.MinutePctChange = quant.PctChange(row.MinuteCurrentPrice, row.MinutePreviousPrice)

		if row.Degraded {
			flags.DegradedSymbols = append(flags.DegradedSymbols, string(sym))
		}
		returns[sym] = row
		symbolReturns = append(symbolReturns, row)
	}

	pairs := make([]domain.PairMetric, 0, len(market.Pairs))
	for _, pair := range market.Pairs {
		var metric domain.PairMetric
		if in.Open[pair.A] && in.Open[pair.B] {
			metric = computePair(pair, bySymbol[pair.A], bySymbol[pair.B], returns[pair.A], returns[pair.B])
		} else {
			metric = domain.PairMetric{Pair: pair.ID()}
		}
		pairs = append(pairs, metric)
		flags.PairAlignedPoints = append(flags.PairAlignedPoints, fmt.Sprintf("%s:%d", metric.Pair, metric.AlignedPoints))
	}

	return domain.Snapshot{
		AnchorTime:    anchor,
		WindowStart:   windowStart,
		WindowEnd:     anchor,
		SymbolReturns: symbolReturns,
		PairMetrics:   pairs,
		QualityFlags:  flags,
	}
}

func computePair(pair market.Pair, a, b *series, rowA, rowB domain.SymbolReturn) domain.PairMetric {
	aligned := make([]int64, 0, len(a.returns))
	for ts := range a.returns {
		if _, ok := b.returns[ts]; ok {
			aligned = append(aligned, ts)
		}
	}
	sort.Slice(aligned, func(i, j int) bool { return aligned[i] < aligned[j] })

	aReturns := make([]float64, len(aligned))
	bReturns := make([]float64, len(aligned))
	history := make([]float64, len(aligned))
	for i, ts := range aligned {
		aReturns[i] = a.returns[ts]
		bReturns[i] = b.returns[ts]
		history[i] = (aReturns[i] - bReturns[i]) * 100
	}

	metric := domain.PairMetric{
		Pair:          pair.ID(),
		Correlation:   quant.Pearson(aReturns, bReturns),
		Beta:          quant.Beta(aReturns, bReturns),
		AlignedPoints: len(aligned),
	}

	if rowA.MinutePctChange != nil && rowB.MinutePctChange != nil {
		diff := *rowA.MinutePctChange - *rowB.MinutePctChange
		agree := quant.Sign(*rowA.MinutePctChange) == quant.Sign(*rowB.MinutePctChange)
		metric.MinuteReturnDiff = &diff
		metric.MinuteDirectionAgree = &agree
	}

	current := 0.0
	if rowA.PctChange != nil && rowB.PctChange != nil {
		spread := *rowA.PctChange - *rowB.PctChange
		metric.Spread = &spread
		current = spread
	}
	if len(history) > 2 {
		metric.ZScore = quant.ZScore(current, history)
	}

	metric.RelativeStrength = quant.RelativeStrength(rowA.PctChange, rowB.PctChange, metric.Beta, metric.ZScore)
	return metric
}
