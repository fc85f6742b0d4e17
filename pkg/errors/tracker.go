package errors

import "context"

// Tracker forwards errors to an external service. Tags carry the job name, component and similar labels.
type Tracker interface {
	CaptureError(ctx context.Context, err error, tags map[string]string) error
	// Flush blocks until queued events are delivered or ctx expires
	Flush(ctx context.Context) error
}
