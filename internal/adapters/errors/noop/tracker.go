// Package noop provides a Tracker that discards every event.
package noop

import (
	"context"

	"oidworker/pkg/errors"
)

type Tracker struct{}

var _ errors.Tracker = Tracker{}

func New() Tracker { return Tracker{} }

func (Tracker) CaptureError(context.Context, error, map[string]string) error { return nil }

func (Tracker) Flush(context.Context) error { return nil }
