package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/adapters/kafka"
	"oidworker/internal/domain/jobrun"
	"oidworker/internal/domain/options"
	"oidworker/internal/domain/relation"
	"oidworker/pkg/errors"
)

type sent struct {
	topic string
	key   string
	body  map[string]interface{}
}

type fakeSender struct {
	messages []sent
	err      error
}

func (f *fakeSender) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	f.messages = append(f.messages, sent{topic: topic, key: key, body: body})
	return nil
}

func TestPublisher_RelationSaved(t *testing.T) {
	sender := &fakeSender{}
	p := NewPublisher(sender)

	bkk := time.FixedZone("ICT", 7*3600)
	snap := &relation.Snapshot{
		AnchorTime:   time.Date(2025, time.January, 8, 17, 0, 0, 0, bkk),
		QualityFlags: relation.QualityFlags{OpenSymbols: []string{"XAUUSD", "BTCUSD"}},
	}
	require.NoError(t, p.RelationSaved(context.Background(), snap))

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, kafka.TopicRelationSnapshots, msg.topic)
	assert.Equal(t, "2025-01-08T10:00Z", msg.key)
	assert.Equal(t, TypeRelationSnapshot, msg.body["type"])
	assert.Equal(t, "1.0", msg.body["version"])
	assert.NotEmpty(t, msg.body["id"])
}

func TestPublisher_OptionsSavedAndRunRecorded(t *testing.T) {
	sender := &fakeSender{}
	p := NewPublisher(sender)
	ctx := context.Background()

	snap := &options.Snapshot{ID: uuid.New(), ViewType: options.ViewOI, SeriesName: "OG2F5", PutTotal: 10, CallTotal: 12}
	require.NoError(t, p.OptionsSaved(ctx, snap, make([]options.StrikeBar, 4)))

	now := time.Now()
	run := jobrun.NewRun(jobrun.JobOptions, jobrun.StatusSkipped, now, now, jobrun.Metadata{"reason": "cme_session_closed"})
	require.NoError(t, p.RunRecorded(ctx, run))

	require.Len(t, sender.messages, 2)
	assert.Equal(t, kafka.TopicOptionsSnapshots, sender.messages[0].topic)
	assert.Equal(t, "oi", sender.messages[0].key)
	assert.Equal(t, float64(4), sender.messages[0].body["bars"])

	assert.Equal(t, kafka.TopicJobRuns, sender.messages[1].topic)
	assert.Equal(t, "cme_30m", sender.messages[1].key)
	runBody, ok := sender.messages[1].body["run"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "skipped", runBody["status"])
}

func TestPublisher_WrapsSendErrors(t *testing.T) {
	p := NewPublisher(&fakeSender{err: errors.ErrUnavailable})

	err := p.RunRecorded(context.Background(), jobrun.NewRun(jobrun.JobRelation, jobrun.StatusSuccess, time.Now(), time.Now(), nil))
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}
