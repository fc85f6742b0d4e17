package relation

import "time"

// MinPoints is the minute-price count below which an open symbol is flagged degraded
const MinPoints = 24

// SymbolReturn holds per-symbol window and last-minute changes.
// Price fields are nil when the symbol is closed or had no data.
type SymbolReturn struct {
	Symbol              string   `json:"symbol"`
	CurrentPrice        *float64 `json:"current_price"`
	PreviousPrice       *float64 `json:"previous_price"`
	AbsChange           *float64 `json:"abs_change"`
	PctChange           *float64 `json:"pct_change"`
	MinuteCurrentPrice  *float64 `json:"minute_current_price"`
	MinutePreviousPrice *float64 `json:"minute_previous_price"`
	MinuteAbsChange     *float64 `json:"minute_abs_change"`
	MinutePctChange     *float64 `json:"minute_pct_change"`
	PointsObserved      int      `json:"points_observed"`
	Degraded            bool     `json:"degraded"`
}

// PairMetric holds co-movement statistics for one instrument pair
type PairMetric struct {
	Pair                 string   `json:"pair"`
	Correlation          *float64 `json:"correlation"`
	Beta                 *float64 `json:"beta"`
	Spread               *float64 `json:"spread"`
	ZScore               *float64 `json:"z_score"`
	RelativeStrength     *float64 `json:"relative_strength"`
	MinuteReturnDiff     *float64 `json:"minute_return_diff"`
	MinuteDirectionAgree *bool    `json:"minute_direction_agree"`
	AlignedPoints        int      `json:"aligned_points"`
}

// QualityFlags summarizes data coverage for diagnosability
type QualityFlags struct {
	MinPointsRequired int      `json:"min_points_required"`
	OpenSymbols       []string `json:"open_symbols"`
	ClosedSymbols     []string `json:"closed_symbols"`
	DegradedSymbols   []string `json:"degraded_symbols"`
	PairAlignedPoints []string `json:"pair_aligned_points"`
}

// Snapshot is the 30-minute relation product, keyed by AnchorTime
type Snapshot struct {
	AnchorTime    time.Time
	WindowStart   time.Time
	WindowEnd     time.Time
	SymbolReturns []SymbolReturn
	PairMetrics   []PairMetric
	QualityFlags  QualityFlags
	UpdatedAt     time.Time
}
