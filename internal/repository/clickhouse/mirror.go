package clickhouse

import (
	"context"
	"time"

	chclient "oidworker/internal/adapters/clickhouse"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
)

// PairMetricRow is one relation pair at one anchor
type PairMetricRow struct {
	AnchorTime           time.Time `ch:"anchor_time"`
	Pair                 string    `ch:"pair"`
	Correlation          *float64  `ch:"correlation"`
	Beta                 *float64  `ch:"beta"`
	Spread               *float64  `ch:"spread"`
	ZScore               *float64  `ch:"z_score"`
	RelativeStrength     *float64  `ch:"relative_strength"`
	MinuteReturnDiff     *float64  `ch:"minute_return_diff"`
	MinuteDirectionAgree *uint8    `ch:"minute_direction_agree"`
	AlignedPoints        uint32    `ch:"aligned_points"`
}

// StrikeBarRow is one strike of one options snapshot
type StrikeBarRow struct {
	SnapshotTime  time.Time `ch:"snapshot_time"`
	TradeDate     string    `ch:"trade_date"`
	ViewType      string    `ch:"view_type"`
	SeriesName    string    `ch:"series_name"`
	Strike        float64   `ch:"strike"`
	Put           float64   `ch:"put"`
	Call          float64   `ch:"call"`
	VolSettle     *float64  `ch:"vol_settle"`
	TotalActivity float64   `ch:"total_activity"`
}

const (
	insertPairMetrics = `INSERT INTO relation_pair_metrics`
	insertStrikeBars  = `INSERT INTO options_strike_bars`
)

// Mirror appends relation and options products to ClickHouse for long-range analysis.
// It is wired as a best-effort sink; Postgres remains the system of record.
type Mirror struct {
	client *chclient.Client
}

// NewMirror creates a ClickHouse mirror
func NewMirror(client *chclient.Client) *Mirror {
	return &Mirror{client: client}
}

func (m *Mirror) Name() string { return "clickhouse" }

// RelationSaved appends one row per pair metric
func (m *Mirror) RelationSaved(ctx context.Context, snapshot *relation.Snapshot) error {
	return chclient.AppendRows(ctx, m.client, insertPairMetrics, PairMetricRows(snapshot))
}

// OptionsSaved appends the snapshot's strike bars
func (m *Mirror) OptionsSaved(ctx context.Context, snapshot *options.Snapshot, bars []options.StrikeBar) error {
	return chclient.AppendRows(ctx, m.client, insertStrikeBars, StrikeBarRows(snapshot, bars))
}

// PairMetricRows flattens a relation snapshot
func PairMetricRows(s *relation.Snapshot) []PairMetricRow {
	rows := make([]PairMetricRow, 0, len(s.PairMetrics))
	for _, p := range s.PairMetrics {
		row := PairMetricRow{
			AnchorTime:       s.AnchorTime.UTC(),
			Pair:             p.Pair,
			Correlation:      p.Correlation,
			Beta:             p.Beta,
			Spread:           p.Spread,
			ZScore:           p.ZScore,
			RelativeStrength: p.RelativeStrength,
			MinuteReturnDiff: p.MinuteReturnDiff,
			AlignedPoints:    uint32(p.AlignedPoints),
		}
		if p.MinuteDirectionAgree != nil {
			var v uint8
			if *p.MinuteDirectionAgree {
				v = 1
			}
			row.MinuteDirectionAgree = &v
		}
		rows = append(rows, row)
	}
	return rows
}

// StrikeBarRows denormalizes bars with their snapshot's keys
func StrikeBarRows(s *options.Snapshot, bars []options.StrikeBar) []StrikeBarRow {
	rows := make([]StrikeBarRow, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, StrikeBarRow{
			SnapshotTime:  s.SnapshotTime.UTC(),
			TradeDate:     s.TradeDate,
			ViewType:      string(s.ViewType),
			SeriesName:    s.SeriesName,
			Strike:        b.Strike,
			Put:           b.Put,
			Call:          b.Call,
			VolSettle:     b.VolSettle,
			TotalActivity: b.TotalActivity,
		})
	}
	return rows
}
