package events

import (
	"context"

	"oidworker/internal/adapters/kafka"
	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
	"oidworker/internal/metrics"
	"oidworker/pkg/errors"
	"oidworker/pkg/logger"
)

// Sender writes one JSON event to a topic
type Sender interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Publisher mirrors persisted snapshots and recorded job runs to Kafka.
// It is a relation sink, an options sink and a job run observer.
type Publisher struct {
	sender Sender
	log    *logger.Logger
}

var _ jobrun.Observer = (*Publisher)(nil)

// NewPublisher creates a new event publisher
func NewPublisher(sender Sender) *Publisher {
	return &Publisher{
		sender: sender,
		log:    logger.Get().With("component", "event_publisher"),
	}
}

func (p *Publisher) Name() string { return "kafka" }

// RelationSaved publishes a relation snapshot keyed by anchor minute
func (p *Publisher) RelationSaved(ctx context.Context, snapshot *relation.Snapshot) error {
	event := RelationSnapshotEvent{
		Envelope:      NewEnvelope(TypeRelationSnapshot),
		AnchorTime:    snapshot.AnchorTime,
		SymbolReturns: snapshot.SymbolReturns,
		PairMetrics:   snapshot.PairMetrics,
		QualityFlags:  snapshot.QualityFlags,
	}
	key := snapshot.AnchorTime.UTC().Format("2006-01-02T15:04Z")
	return p.publish(ctx, kafka.TopicRelationSnapshots, key, event)
}

// OptionsSaved publishes an options snapshot summary keyed by view
func (p *Publisher) OptionsSaved(ctx context.Context, snapshot *options.Snapshot, bars []options.StrikeBar) error {
	event := OptionsSnapshotEvent{
		Envelope:     NewEnvelope(TypeOptionsSnapshot),
		SnapshotID:   snapshot.ID,
		View:         snapshot.ViewType,
		SnapshotTime: snapshot.SnapshotTime,
		TradeDate:    snapshot.TradeDate,
		Series:       snapshot.SeriesName,
		DTE:          snapshot.DTE,
		PutTotal:     snapshot.PutTotal,
		CallTotal:    snapshot.CallTotal,
		Bars:         len(bars),
	}
	return p.publish(ctx, kafka.TopicOptionsSnapshots, string(snapshot.ViewType), event)
}

// RunRecorded publishes a job run keyed by job name
func (p *Publisher) RunRecorded(ctx context.Context, run *jobrun.Run) error {
	event := JobRunEvent{
		Envelope: NewEnvelope(TypeJobRun),
		Run:      *run,
	}
	return p.publish(ctx, kafka.TopicJobRuns, string(run.JobName), event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	err := p.sender.Publish(ctx, topic, key, event)
	metrics.RecordKafkaMessage(topic, err)
	if err != nil {
		p.log.Errorw("Failed to publish event", "topic", topic, "key", key, "error", err)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}
