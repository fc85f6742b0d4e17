package options

import (
	"time"

	"github.com/google/uuid"
)

// ViewType selects one of the chart lenses
type ViewType string

const (
	ViewIntraday ViewType = "intraday"
	ViewOI       ViewType = "oi"
)

// Views lists the lenses processed on every run, in processing order
var Views = []ViewType{ViewIntraday, ViewOI}

func (v ViewType) String() string {
	return string(v)
}

// TopLimit is how many strikes are kept for top actives and top changes
const TopLimit = 3

// Bar is one strike row as produced by the extractor
type Bar struct {
	Strike    float64  `json:"strike"`
	Put       float64  `json:"put"`
	Call      float64  `json:"call"`
	VolSettle *float64 `json:"vol_settle"`
}

// Total returns put + call activity
func (b Bar) Total() float64 {
	return b.Put + b.Call
}

// ExtractedView is the structured output of one chart extraction
type ExtractedView struct {
	SeriesName      string
	ExpirationLabel *string
	ExpirationDate  *string
	DTE             *float64
	PutTotal        float64
	CallTotal       float64
	Vol             *float64
	VolChg          *float64
	FutureChg       *float64
	Bars            []Bar
}

// Snapshot is one view captured at one anchor minute
type Snapshot struct {
	ID              uuid.UUID `db:"id"`
	ViewType        ViewType  `db:"view_type"`
	SnapshotTime    time.Time `db:"snapshot_time_utc"`
	SnapshotTimeBKK string    `db:"snapshot_time_bkk"`
	TradeDate       string    `db:"trade_date_bkk"`
	SeriesName      string    `db:"series_name"`
	ExpirationLabel *string   `db:"series_expiration_label"`
	ExpirationDate  *string   `db:"series_expiration_date"`
	DTE             *float64  `db:"series_dte"`
	PutTotal        float64   `db:"put_total"`
	CallTotal       float64   `db:"call_total"`
	Vol             *float64  `db:"vol"`
	VolChg          *float64  `db:"vol_chg"`
	FutureChg       *float64  `db:"future_chg"`
	ReferencePrice  *float64  `db:"xauusd_price_at_snapshot"`
	SourceURL       string    `db:"source_url"`
}

// StrikeBar is a persisted strike row owned by a snapshot
type StrikeBar struct {
	SnapshotID    uuid.UUID `db:"snapshot_id"`
	Strike        float64   `db:"strike"`
	Put           float64   `db:"put"`
	Call          float64   `db:"call"`
	VolSettle     *float64  `db:"vol_settle"`
	TotalActivity float64   `db:"total_activity"`
}

// TopActive is one of the most active strikes of a snapshot
type TopActive struct {
	SnapshotID uuid.UUID `db:"snapshot_id"`
	Rank       int       `db:"rank"`
	Strike     float64   `db:"strike"`
	Put        float64   `db:"put"`
	Call       float64   `db:"call"`
	Total      float64   `db:"total"`
	VolSettle  *float64  `db:"vol_settle"`
}

// Delta compares a snapshot with the one before it for the same view and series.
// Vol and future before/now keep their raw nullability; changes treat nil as zero.
type Delta struct {
	ID                   uuid.UUID `db:"id"`
	CurrentSnapshotID    uuid.UUID `db:"current_snapshot_id"`
	PreviousSnapshotID   uuid.UUID `db:"previous_snapshot_id"`
	PreviousSnapshotTime time.Time `db:"previous_snapshot_time_utc"`
	PreviousTimeBKK      string    `db:"previous_snapshot_time_bkk"`
	SnapshotTime         time.Time `db:"snapshot_time_utc"`
	SnapshotTimeBKK      string    `db:"snapshot_time_bkk"`
	ViewType             ViewType  `db:"view_type"`
	SeriesName           string    `db:"series_name"`
	PutBefore            float64   `db:"put_before"`
	PutNow               float64   `db:"put_now"`
	PutChange            float64   `db:"put_change"`
	CallBefore           float64   `db:"call_before"`
	CallNow              float64   `db:"call_now"`
	CallChange           float64   `db:"call_change"`
	VolBefore            *float64  `db:"vol_before"`
	VolNow               *float64  `db:"vol_now"`
	VolChange            float64   `db:"vol_change"`
	FutureBefore         *float64  `db:"future_before"`
	FutureNow            *float64  `db:"future_now"`
	FutureChange         float64   `db:"future_change"`
}

// StrikeChange is the per-strike movement between two bar sets
type StrikeChange struct {
	Strike      float64 `db:"strike" json:"strike"`
	PutBefore   float64 `db:"put_before" json:"put_before"`
	PutNow      float64 `db:"put_now" json:"put_now"`
	PutChange   float64 `db:"put_change" json:"put_change"`
	CallBefore  float64 `db:"call_before" json:"call_before"`
	CallNow     float64 `db:"call_now" json:"call_now"`
	CallChange  float64 `db:"call_change" json:"call_change"`
	TotalBefore float64 `db:"total_before" json:"total_before"`
	TotalNow    float64 `db:"total_now" json:"total_now"`
	TotalChange float64 `db:"total_change" json:"total_change"`
}

// TopStrikeChange is a ranked StrikeChange owned by a delta
type TopStrikeChange struct {
	DeltaID uuid.UUID `db:"delta_id"`
	Rank    int       `db:"rank"`
	StrikeChange
}
