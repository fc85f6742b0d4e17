package telegram

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oidworker/internal/domain/jobrun"
	"oidworker/pkg/errors"
)

type recordedMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent []recordedMessage
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, recordedMessage{chatID, text})
	return nil
}

func TestFailureAlerts_OnlyFailedRuns(t *testing.T) {
	sender := &fakeSender{}
	alerts := NewFailureAlerts(sender, -100123)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, alerts.RunRecorded(ctx, jobrun.NewRun(jobrun.JobRelation, jobrun.StatusSuccess, now, now, nil)))
	require.NoError(t, alerts.RunRecorded(ctx, jobrun.NewRun(jobrun.JobOptions, jobrun.StatusSkipped, now, now, nil)))
	assert.Empty(t, sender.sent)

	failed := jobrun.NewRun(jobrun.JobOptions, jobrun.StatusFailed, now.Add(-3*time.Second), now, nil).
		WithError(errors.New("no_strike_bars_parsed tab=oi"))
	require.NoError(t, alerts.RunRecorded(ctx, failed))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100123), sender.sent[0].chatID)
	assert.Contains(t, sender.sent[0].text, "`cme_30m`")
	assert.Contains(t, sender.sent[0].text, "*Duration:* 3s")
	assert.Contains(t, sender.sent[0].text, `no\_strike\_bars\_parsed tab=oi`)
}

func TestFormatFailure_TruncatesLongErrors(t *testing.T) {
	now := time.Now()
	run := jobrun.NewRun(jobrun.JobRetention, jobrun.StatusFailed, now, now, nil).
		WithError(errors.New(strings.Repeat("x", 2000)))

	text := FormatFailure(run)
	assert.Less(t, len(text), 1100)
	assert.True(t, strings.HasSuffix(text, "…"))
}

func TestFormatFailure_MissingMessage(t *testing.T) {
	now := time.Now()
	run := jobrun.NewRun(jobrun.JobRelation, jobrun.StatusFailed, now, now, nil)
	assert.Contains(t, FormatFailure(run), "unknown error")
}
