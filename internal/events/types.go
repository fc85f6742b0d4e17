package events

import (
	"time"

	"github.com/google/uuid"

	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
)

// Event type names
const (
	TypeRelationSnapshot = "relation.snapshot_saved"
	TypeOptionsSnapshot  = "options.snapshot_saved"
	TypeJobRun           = "jobs.run_recorded"
)

// RelationSnapshotEvent announces a persisted relation snapshot
type RelationSnapshotEvent struct {
	Envelope
	AnchorTime    time.Time               `json:"anchor_time"`
	SymbolReturns []relation.SymbolReturn `json:"symbol_returns"`
	PairMetrics   []relation.PairMetric   `json:"pair_metrics"`
	QualityFlags  relation.QualityFlags   `json:"quality_flags"`
}

// OptionsSnapshotEvent announces a persisted options snapshot
type OptionsSnapshotEvent struct {
	Envelope
	SnapshotID   uuid.UUID        `json:"snapshot_id"`
	View         options.ViewType `json:"view"`
	SnapshotTime time.Time        `json:"snapshot_time"`
	TradeDate    string           `json:"trade_date"`
	Series       string           `json:"series"`
	DTE          *float64         `json:"dte"`
	PutTotal     float64          `json:"put_total"`
	CallTotal    float64          `json:"call_total"`
	Bars         int              `json:"bars"`
}

// JobRunEvent announces a recorded job run
type JobRunEvent struct {
	Envelope
	Run jobrun.Run `json:"run"`
}
