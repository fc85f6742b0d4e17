package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"oidworker/internal/domain/jobrun"
)

// maxErrorLength keeps alert messages well under the Telegram message limit
const maxErrorLength = 800

// Sender delivers a text message to a chat
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// FailureAlerts sends a message to one chat whenever a job run fails
type FailureAlerts struct {
	sender Sender
	chatID int64
}

var _ jobrun.Observer = (*FailureAlerts)(nil)

func NewFailureAlerts(sender Sender, chatID int64) *FailureAlerts {
	return &FailureAlerts{sender: sender, chatID: chatID}
}

func (a *FailureAlerts) Name() string { return "telegram" }

// RunRecorded alerts on failed runs and ignores the rest
func (a *FailureAlerts) RunRecorded(ctx context.Context, run *jobrun.Run) error {
	if run.Status != jobrun.StatusFailed {
		return nil
	}
	return a.sender.SendMessage(ctx, a.chatID, FormatFailure(run))
}

// FormatFailure renders a failed run as a Markdown alert
func FormatFailure(run *jobrun.Run) string {
	msg := "unknown error"
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		msg = *run.ErrorMessage
	}
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength] + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Job failed:* `%s`\n", run.JobName)
	fmt.Fprintf(&b, "*Started:* %s UTC (%s)\n", run.StartedAt.UTC().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	fmt.Fprintf(&b, "*Duration:* %s\n", run.Duration().Round(1e6))
	fmt.Fprintf(&b, "*Error:* %s", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, msg))
	return b.String()
}
